package tts

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
)

const tempOutputPattern = "speech-output-*.wav"

// CommandModel is a Model backed by a local inference binary. Each call runs
// the binary once and reads the WAV file it exports.
type CommandModel struct {
	binary    string
	modelPath string
	name      string
	device    string
	log       *logger.Logger
}

// NewCommandModel creates a CommandModel. modelPath is optional and passed to
// the binary with --model when set.
func NewCommandModel(binary, modelPath, name, device string, log *logger.Logger) *CommandModel {
	return &CommandModel{
		binary:    binary,
		modelPath: modelPath,
		name:      name,
		device:    device,
		log:       log,
	}
}

// Name returns the model name.
func (p *CommandModel) Name() string {
	return p.name
}

// Device returns the configured device.
func (p *CommandModel) Device() string {
	return p.device
}

// SupportedLanguages returns a copy of DefaultLanguages.
func (p *CommandModel) SupportedLanguages() map[string]string {
	return maps.Clone(DefaultLanguages)
}

// Load verifies that the binary and the model file are present.
func (p *CommandModel) Load(_ context.Context) error {
	_, err := exec.LookPath(p.binary)
	if err != nil {
		return fmt.Errorf("inference binary %q not found: %w", p.binary, err)
	}

	if p.modelPath != "" {
		_, statErr := os.Stat(p.modelPath)
		if statErr != nil {
			return fmt.Errorf("model file %q not accessible: %w", p.modelPath, statErr)
		}
	}

	return nil
}

// Generate runs the binary for one utterance and decodes its output.
func (p *CommandModel) Generate(ctx context.Context, params GenerateParams) (audio.Waveform, error) {
	tempFile, err := os.CreateTemp("", tempOutputPattern)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to create temp file for speech output: %w", err)
	}

	closeErr := tempFile.Close()
	if closeErr != nil {
		p.log.Warn("Failed to close temp file '%s': %v", tempFile.Name(), closeErr)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil && !os.IsNotExist(removeErr) {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	// #nosec G204 -- binary comes from configuration, text is passed as a single argument
	cmd := exec.CommandContext(ctx, p.binary, p.buildArgs(params, tempFile.Name())...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("inference binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	return audio.DecodeWAV(audioData)
}

func (p *CommandModel) buildArgs(params GenerateParams, outputPath string) []string {
	args := []string{
		"--text", params.Text,
		"--output", outputPath,
		"--temperature", strconv.FormatFloat(params.Temperature, 'f', 2, 64),
		"--cfg-weight", strconv.FormatFloat(params.GuidanceWeight, 'f', 2, 64),
		"--exaggeration", strconv.FormatFloat(params.Exaggeration, 'f', 2, 64),
	}

	if p.modelPath != "" {
		args = append(args, "--model", p.modelPath)
	}

	if p.device != "" {
		args = append(args, "--device", p.device)
	}

	if params.Language != "" {
		args = append(args, "--language", params.Language)
	}

	if params.ReferenceAudioPath != "" {
		args = append(args, "--audio-prompt", params.ReferenceAudioPath)
	}

	return args
}
