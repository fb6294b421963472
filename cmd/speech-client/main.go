// Command speech-client calls a running speech gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const (
	envGatewayURL     = "SPEECH_GATEWAY_URL"
	defaultGatewayURL = "http://localhost:8000"
	defaultTimeout    = 5 * time.Minute
)

// Messages.
const (
	msgGenerated       = "Generated %s (%s, %s) in %s\n"
	msgServiceHealthy  = "Speech gateway is healthy: model=%s device=%s\n"
	msgServiceDown     = "Speech gateway is not healthy: %s\n"
	errFmtWriteOutput  = "failed to write %s: %w"
	errFmtEmptyText    = "text is required, pass it as an argument or with --file"
	errFmtBothTextFile = "pass text as an argument or with --file, not both"
)

var errUnhealthy = errors.New("speech gateway is not healthy")

// rootOptions holds persistent flag values.
type rootOptions struct {
	url     string
	timeout time.Duration
}

// speakOptions holds the speak flag values.
type speakOptions struct {
	file         string
	output       string
	model        string
	voice        string
	format       string
	language     string
	audioPrompt  string
	speed        float64
	temperature  float64
	cfgWeight    float64
	exaggeration float64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "speech-client",
		Short: "Client for the speech gateway",
		Long: `speech-client talks to a speech gateway over its OpenAI-compatible API.

Examples:
  speech-client speak "Hello world" --voice aimee --format wav
  speech-client speak --file chapter.txt --model chatterbox-multilingual-fr -o chapter.mp3
  speech-client voices
  speech-client models
  speech-client health`,
		SilenceUsage: true,
	}

	defaultURL := os.Getenv(envGatewayURL)
	if defaultURL == "" {
		defaultURL = defaultGatewayURL
	}

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "gateway base URL (env "+envGatewayURL+")")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")

	rootCmd.AddCommand(
		newSpeakCmd(opts),
		newVoicesCmd(opts),
		newModelsCmd(opts),
		newHealthCmd(opts),
	)

	return rootCmd
}

func newSpeakCmd(root *rootOptions) *cobra.Command {
	opts := &speakOptions{}

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeak(cmd, root, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "read text from file")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default speech.<format>)")
	flags.StringVarP(&opts.model, "model", "m", tts.DEFAULT_MODEL, "model id, optionally with a -<lang> suffix")
	flags.StringVarP(&opts.voice, "voice", "v", "", "voice sample name")
	flags.StringVar(&opts.format, "format", "", "response format: mp3, wav, opus, flac, pcm, aac")
	flags.StringVarP(&opts.language, "language", "l", "", "language code")
	flags.StringVar(&opts.audioPrompt, "audio-prompt", "", "reference audio path on the gateway host")
	flags.Float64Var(&opts.speed, "speed", 0, "playback speed, 0.25 to 4")
	flags.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")
	flags.Float64Var(&opts.cfgWeight, "cfg-weight", 0, "classifier-free guidance weight")
	flags.Float64Var(&opts.exaggeration, "exaggeration", 0, "emotion exaggeration")

	return cmd
}

func runSpeak(cmd *cobra.Command, root *rootOptions, opts *speakOptions, args []string) error {
	input, err := speakInput(opts, args)
	if err != nil {
		return err
	}

	request := buildSpeechRequest(cmd, opts, input)
	client := newGatewayClient(root.url, root.timeout)

	start := time.Now()

	result, err := client.speak(cmd.Context(), request)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = result.Filename
	}

	if output == "" {
		format := opts.format
		if format == "" {
			format = string(audio.DEFAULT_FORMAT)
		}

		output = "speech." + format
	}

	err = os.WriteFile(output, result.Audio, 0o644)
	if err != nil {
		return fmt.Errorf(errFmtWriteOutput, output, err)
	}

	fmt.Fprintf(
		cmd.OutOrStdout(),
		msgGenerated,
		filepath.Clean(output),
		humanize.IBytes(uint64(len(result.Audio))),
		result.ContentType,
		time.Since(start).Round(time.Millisecond),
	)

	return nil
}

func speakInput(opts *speakOptions, args []string) (string, error) {
	switch {
	case len(args) == 1 && opts.file != "":
		return "", errors.New(errFmtBothTextFile)
	case len(args) == 1:
		return args[0], nil
	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", opts.file, err)
		}

		return string(data), nil
	default:
		return "", errors.New(errFmtEmptyText)
	}
}

// buildSpeechRequest sets optional numeric fields only when their flag was given.
func buildSpeechRequest(cmd *cobra.Command, opts *speakOptions, input string) tts.SpeechRequest {
	request := tts.SpeechRequest{
		Model:          opts.model,
		Input:          input,
		Voice:          opts.voice,
		ResponseFormat: opts.format,
		Language:       opts.language,
		AudioPrompt:    opts.audioPrompt,
	}

	flags := cmd.Flags()

	optional := func(name string, value float64) *float64 {
		if !flags.Changed(name) {
			return nil
		}

		return &value
	}

	request.Speed = optional("speed", opts.speed)
	request.Temperature = optional("temperature", opts.temperature)
	request.CFGWeight = optional("cfg-weight", opts.cfgWeight)
	request.Exaggeration = optional("exaggeration", opts.exaggeration)

	return request
}

func newVoicesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			voiceList, err := newGatewayClient(root.url, root.timeout).voices(cmd.Context())
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tNAME\tLANGUAGES")

			for _, voice := range voiceList {
				fmt.Fprintf(writer, "%s\t%s\t%d\n", voice.ID, voice.Name, len(voice.Languages))
			}

			return writer.Flush()
		},
	}
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelList, err := newGatewayClient(root.url, root.timeout).models(cmd.Context())
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tOWNER\tCREATED\tDESCRIPTION")

			for _, model := range modelList {
				fmt.Fprintf(
					writer,
					"%s\t%s\t%s\t%s\n",
					model.ID,
					model.OwnedBy,
					humanize.Time(time.Unix(model.Created, 0)),
					model.Description,
				)
			}

			return writer.Flush()
		},
	}
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := newGatewayClient(root.url, root.timeout).health(cmd.Context())
			if err != nil {
				return err
			}

			return printHealth(cmd.OutOrStdout(), health)
		},
	}
}

func printHealth(writer io.Writer, health tts.Health) error {
	if !health.Healthy() {
		fmt.Fprintf(writer, msgServiceDown, strings.TrimSpace(health.Error))

		return errUnhealthy
	}

	fmt.Fprintf(writer, msgServiceHealthy, health.Model, health.Device)

	return nil
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
