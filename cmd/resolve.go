package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/detector"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <files...>",
	Short: "Resolve the faces in image files to known people",
	Long: `Detect faces in the given image files and decide for each face whether it
belongs to a known person (matched), could be one of several (ambiguous) or
belongs to nobody known (unknown).

All images are resolved against the same snapshot of identities. An image
that fails never stops the others.

Examples:
  face-identity resolve party/*.jpg
  face-identity resolve --owner family --order rtl --persist IMG_0001.jpg
  face-identity resolve --json scan.png > result.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().String("owner", "", "Owner scope of the identities (default \"default\")")
	resolveCmd.Flags().String("order", "ltr", "Face numbering order: ltr or rtl")
	resolveCmd.Flags().Int("workers", constants.WorkerPoolSize, "Number of parallel workers")
	resolveCmd.Flags().Bool("persist", false, "Store faces and decisions so they can be confirmed later")
	resolveCmd.Flags().Bool("json", false, "Output as JSON")
}

// detectedImage pairs a file with its detection outcome.
type detectedImage struct {
	path      string
	detection *detector.Detection
	err       error
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	owner := mustGetString(cmd, "owner")
	order := facematch.ParseOrder(mustGetString(cmd, "order"))
	workers := mustGetInt(cmd, "workers")
	persist := mustGetBool(cmd, "persist")
	jsonOutput := mustGetBool(cmd, "json")
	if workers <= 0 {
		workers = constants.WorkerPoolSize
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	det := detector.NewClient(cfg.Detector.URL, cfg.Detector.MinScore)
	detected := detectFiles(ctx, det, args, workers, !jsonOutput)

	var inputs []facematch.ImageInput
	var positions []int
	reports := make([]resolver.ImageReport, len(detected))
	for i, d := range detected {
		if d.err != nil {
			reports[i] = resolver.ImageReport{Ref: d.path, Faces: []resolver.FaceReport{}, Error: d.err.Error()}
			continue
		}
		inputs = append(inputs, d.detection.Input(d.path))
		positions = append(positions, i)
	}

	resolved := svc.ResolveImages(ctx, owner, inputs, resolver.ResolveOptions{
		Order:   order,
		Persist: persist,
		Workers: workers,
	})
	for j, pos := range positions {
		reports[pos] = resolved[j]
	}

	summary := resolver.Summarize(reports)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Results []resolver.ImageReport `json:"results"`
			Summary resolver.Summary       `json:"summary"`
		}{reports, summary})
	}

	printReports(reports)
	fmt.Printf("\nImages: %d (%d failed), faces: %d, matched: %d, ambiguous: %d, unknown: %d\n",
		summary.Images, summary.Failed, summary.Faces, summary.Matched, summary.Ambiguous, summary.Unknown)
	return nil
}

// detectFiles reads and detects every file concurrently, keeping input order.
func detectFiles(ctx context.Context, det *detector.Client, paths []string, workers int, showProgress bool) []detectedImage {
	results := make([]detectedImage, len(paths))

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Detecting faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var mu sync.Mutex
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = detectFile(ctx, det, path)

			if bar != nil {
				mu.Lock()
				bar.Add(1)
				mu.Unlock()
			}
		}(i, path)
	}

	wg.Wait()
	if bar != nil {
		fmt.Println()
	}
	return results
}

func detectFile(ctx context.Context, det *detector.Client, path string) detectedImage {
	data, err := os.ReadFile(path)
	if err != nil {
		return detectedImage{path: path, err: fmt.Errorf("read file: %w", err)}
	}
	detection, err := det.Detect(ctx, data)
	if err != nil {
		return detectedImage{path: path, err: fmt.Errorf("face detection failed: %w", err)}
	}
	return detectedImage{path: path, detection: detection}
}

func printReports(reports []resolver.ImageReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tFACE\tSTATUS\tPERSON\tSIMILARITY\tGAP\tDETAIL")
	for _, r := range reports {
		name := filepath.Base(r.Ref)
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-\terror\t\t\t\t%s\n", name, r.Error)
			continue
		}
		if len(r.Faces) == 0 {
			fmt.Fprintf(w, "%s\t-\tno faces\t\t\t\t\n", name)
			continue
		}
		for _, f := range r.Faces {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.4f\t%.4f\t%s\n",
				name, f.FaceNumber, f.Status, f.Name, f.Similarity, f.SimilarityGap, faceDetail(f))
		}
	}
	w.Flush()
}

// faceDetail lists the candidates of ambiguous faces and the reason of the rest.
func faceDetail(f resolver.FaceReport) string {
	if f.Status == facematch.StatusAmbiguous && len(f.TopCandidates) > 0 {
		parts := make([]string, len(f.TopCandidates))
		for i, c := range f.TopCandidates {
			parts[i] = fmt.Sprintf("%s (%.4f)", c.Name, c.Similarity)
		}
		return "candidates: " + strings.Join(parts, ", ")
	}
	return f.Reason
}
