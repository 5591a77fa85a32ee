package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/upload"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf> [file.pdf...]",
	Short: "Classify and store local invoice PDFs",
	Long:  "Runs each file through the same upload, classification and persistence pipeline as POST /upload.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		failed := 0
		for _, path := range args {
			out, err := ingestFile(ctx, env.Pipeline, path)
			if err != nil {
				failed++
			}
			status := "ok"
			if out == nil || !out.Success {
				status = "erro"
			}
			msg := ""
			if out != nil {
				msg = out.Message
			} else if err != nil {
				msg = err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", status, path, msg)
		}
		if failed > 0 {
			return eris.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

// ingestFile submits a local file with a freshly generated matching CSRF
// pair, as a browser session would.
func ingestFile(ctx context.Context, p *ingest.Pipeline, path string) (*ingest.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "stat %s", path)
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, eris.Wrapf(err, "detect type of %s", path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, eris.Wrapf(err, "rewind %s", path)
	}

	token, err := upload.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, ingest.NewScope(""), &upload.File{
		Name:        path,
		ContentType: mt.String(),
		Size:        info.Size(),
		Body:        f,
	}, upload.CSRF{Submitted: token, Expected: token})
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
