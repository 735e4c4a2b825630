package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aluiziolira/go-harvest-models/models"
)

func TestPromptConfirm(t *testing.T) {
	found := &models.DiscoveryResult{IDs: []models.Identifier{"A", "B", "C"}, Strategy: "embedded"}

	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: " YES \n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := promptConfirm(context.Background(), strings.NewReader(tt.input), &out, found)
			if err != nil {
				t.Fatalf("promptConfirm() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("promptConfirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Found 3 models (via embedded)") {
				t.Fatalf("prompt = %q", out.String())
			}
		})
	}
}

func TestPromptConfirmCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := promptConfirm(ctx, r, io.Discard, &models.DiscoveryResult{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("promptConfirm() error = %v, want context.Canceled", err)
	}
}
