package classify

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Runtime ONNX se inicializuje jednou za celý proces.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXConfig popisuje model exportovaný do ONNX (typicky sklearn klasifikátor
// s vypnutým zipmap: výstup label [1] int64 a pravděpodobnosti [1, nClasses]).
type ONNXConfig struct {
	ModelPath   string
	Classes     []string // jména tříd v pořadí indexů modelu
	LibraryPath string   // cesta k libonnxruntime.so, prázdná = vedle modelu
}

// ONNXPredictor je Predictor nad ONNX Runtime.
type ONNXPredictor struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	classes     []string
	labelOutput string
	probOutput  string
}

// NewONNXPredictor načte model a ověří, že má jeden vstup a dva výstupy.
func NewONNXPredictor(cfg ONNXConfig) (*ONNXPredictor, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: chybí cesta k modelu")
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("onnx: chybí seznam tříd")
	}
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: inicializace runtime selhala: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: nelze přečíst model %s: %w", cfg.ModelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: očekávám 1 vstup, model má %d", len(inputs))
	}
	labelOut, probOut, err := pickOutputs(outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: nastavení session selhalo: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{labelOut, probOut},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: vytvoření session selhalo: %w", err)
	}

	return &ONNXPredictor{
		session:     session,
		classes:     cfg.Classes,
		labelOutput: labelOut,
		probOutput:  probOut,
	}, nil
}

// pickOutputs najde výstup s labelem a výstup s pravděpodobnostmi. Jména
// "label"/"probabilit" mají přednost, jinak rozhoduje pořadí.
func pickOutputs(outputs []ort.InputOutputInfo) (string, string, error) {
	if len(outputs) < 2 {
		return "", "", fmt.Errorf("onnx: očekávám 2 výstupy (label, pravděpodobnosti), model má %d", len(outputs))
	}
	label, prob := outputs[0].Name, outputs[1].Name
	for _, o := range outputs {
		name := strings.ToLower(o.Name)
		switch {
		case strings.Contains(name, "probabilit"):
			prob = o.Name
		case strings.Contains(name, "label"):
			label = o.Name
		}
	}
	if label == prob {
		return "", "", fmt.Errorf("onnx: nelze rozlišit výstupy modelu")
	}
	return label, prob, nil
}

// Predict spustí jednu inferenci nad vektorem [teplota, vlhkost, světlo].
func (p *ONNXPredictor) Predict(features []float32) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(features))), features)
	if err != nil {
		return Prediction{}, fmt.Errorf("onnx: vstupní tensor: %w", err)
	}
	defer in.Destroy()

	labelOut, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return Prediction{}, fmt.Errorf("onnx: výstupní tensor: %w", err)
	}
	defer labelOut.Destroy()

	probOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(p.classes))))
	if err != nil {
		return Prediction{}, fmt.Errorf("onnx: výstupní tensor: %w", err)
	}
	defer probOut.Destroy()

	if err := p.session.Run([]ort.Value{in}, []ort.Value{labelOut, probOut}); err != nil {
		return Prediction{}, fmt.Errorf("onnx: inference selhala: %w", err)
	}

	return decodePrediction(labelOut.GetData(), probOut.GetData(), p.classes)
}

// decodePrediction převede surové výstupy modelu na label a jistotu (max. posterior).
func decodePrediction(labels []int64, probs []float32, classes []string) (Prediction, error) {
	if len(labels) == 0 {
		return Prediction{}, fmt.Errorf("onnx: prázdný výstup labelu")
	}
	idx := labels[0]
	if idx < 0 || int(idx) >= len(classes) {
		return Prediction{}, fmt.Errorf("onnx: index třídy %d mimo rozsah %d tříd", idx, len(classes))
	}
	pred := Prediction{Label: classes[idx]}
	if len(probs) > 0 {
		best := probs[0]
		for _, v := range probs[1:] {
			if v > best {
				best = v
			}
		}
		conf := float64(best)
		pred.Confidence = &conf
	}
	return pred, nil
}

// Close uvolní session.
func (p *ONNXPredictor) Close() error {
	return p.session.Destroy()
}
