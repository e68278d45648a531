package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPolicy(t *testing.T) {
	cfg := defaultConfig()
	p, closeFn, err := buildPolicy(cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "rules", p.Name())

	cfg.ClassifierPolicy = " Passthrough"
	p, _, err = buildPolicy(cfg)
	require.NoError(t, err)
	assert.Equal(t, "passthrough", p.Name())
}

func TestBuildPolicy_ModelIgnoresCase(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClassifierPolicy = "Model"
	cfg.ModelPath = "/models/env.onnx"
	cfg.ModelClasses = ""

	// Bez tříd musí selhat už sestavení prediktoru, ne až classify.New.
	_, _, err := buildPolicy(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onnx")
}

func TestBuildPolicy_BadPolarity(t *testing.T) {
	cfg := defaultConfig()
	cfg.LightPolarity = "sideways"
	_, _, err := buildPolicy(cfg)
	assert.Error(t, err)
}
