package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/callgate/internal/audio"
)

var (
	segOutDir    string
	segJSON      bool
	segFrame     time.Duration
	segThreshold float64
	segSilence   time.Duration
)

// segmentReport describes one utterance found in a recording.
type segmentReport struct {
	Seq        int64   `json:"seq"`
	OffsetMS   int64   `json:"offset_ms"`
	DurationMS int64   `json:"duration_ms"`
	RMS        float64 `json:"rms"`
	File       string  `json:"file,omitempty"`
}

var segmentCmd = &cobra.Command{
	Use:   "segment <file.wav>",
	Short: "Replay a recording through the segmenter",
	Long: `Feeds a 16-bit PCM WAV file through the silence segmenter in fixed
frames, as if it arrived on a live call, and reports each utterance.

Segmenter settings come from the environment (SILENCE_THRESHOLD,
SILENCE_DURATION, ...) unless overridden by flags.

Examples:
  callctl segment call.wav
  callctl segment call.wav --silence 700ms --out ./utterances --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		chunk, err := audio.DecodeWAV(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		cfg := settings.Segmenter
		if cmd.Flags().Changed("threshold") {
			cfg.SilenceThreshold = segThreshold
		}
		if cmd.Flags().Changed("silence") {
			cfg.SilenceDuration = segSilence
		}

		reports, seg, err := segmentRecording(chunk, cfg, segFrame, log)
		if err != nil {
			return err
		}

		if segOutDir != "" {
			if err := os.MkdirAll(segOutDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", segOutDir, err)
			}
		}
		for i := range reports {
			if segOutDir == "" {
				continue
			}
			name := filepath.Join(segOutDir, fmt.Sprintf("utterance-%03d.wav", reports[i].Seq))
			if err := os.WriteFile(name, reports[i].wav, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			reports[i].File = name
		}

		out := cmd.OutOrStdout()
		if segJSON {
			rows := make([]segmentReport, len(reports))
			for i, r := range reports {
				rows[i] = r.segmentReport
			}
			b, _ := json.MarshalIndent(map[string]any{
				"utterances":  rows,
				"trailing_ms": seg.Buffered().Milliseconds(),
				"discarded":   seg.Discarded(),
				"dropped":     seg.Dropped(),
			}, "", "  ")
			fmt.Fprintln(out, string(b))
			return nil
		}

		for _, r := range reports {
			fmt.Fprintf(out, "#%d\tat %s\tlasting %s\trms %.4f\t%s\n", r.Seq,
				time.Duration(r.OffsetMS)*time.Millisecond,
				time.Duration(r.DurationMS)*time.Millisecond,
				r.RMS, r.File)
		}
		fmt.Fprintf(out, "%d utterances, %d silent flushes discarded, %s left unsegmented\n",
			len(reports), seg.Discarded(), seg.Buffered())
		return nil
	},
}

type segmented struct {
	segmentReport
	wav []byte
}

// segmentRecording splits the chunk into frames of the given duration and
// ingests them in order.
func segmentRecording(rec audio.Chunk, cfg audio.SegmenterConfig, frame time.Duration, log logrus.FieldLogger) ([]segmented, *audio.Segmenter, error) {
	enc := rec.Encoding
	if enc.SampleRate <= 0 || enc.Channels <= 0 {
		return nil, nil, fmt.Errorf("recording has no usable format")
	}
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	align := 2 * enc.Channels
	frameBytes := int(int64(enc.SampleRate)*int64(frame)/int64(time.Second)) * align
	if frameBytes < align {
		frameBytes = align
	}

	seg := audio.NewSegmenter(cfg, log)
	var out []segmented
	for off := 0; off < len(rec.Payload); off += frameBytes {
		end := min(off+frameBytes, len(rec.Payload))
		end -= (end - off) % align
		if end <= off {
			break
		}
		u := seg.Ingest(audio.Chunk{Payload: rec.Payload[off:end], Encoding: enc})
		if u == nil {
			continue
		}
		out = append(out, segmented{
			segmentReport: segmentReport{
				Seq:        u.Seq,
				OffsetMS:   u.Offset.Milliseconds(),
				DurationMS: u.Duration().Milliseconds(),
				RMS:        audio.RMS(u.Samples),
			},
			wav: u.WAV(),
		})
	}
	return out, seg, nil
}

func init() {
	f := segmentCmd.Flags()
	f.StringVarP(&segOutDir, "out", "o", "", "write each utterance as a WAV file into this directory")
	f.BoolVar(&segJSON, "json", false, "print the report as JSON")
	f.DurationVar(&segFrame, "frame", 20*time.Millisecond, "ingest frame size")
	f.Float64Var(&segThreshold, "threshold", 0, "override SILENCE_THRESHOLD")
	f.DurationVar(&segSilence, "silence", 0, "override SILENCE_DURATION")
}
