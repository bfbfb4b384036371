package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tsawler/go-metal/checkpoints"

	"github.com/dudu/biokiosk/internal/inference"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the ONNX models the kiosk loads",
}

var checkCmd = &cobra.Command{
	Use:   "check [model.onnx ...]",
	Short: "Load each model and print its inputs, outputs and metadata",
	Long: "Load each model with ONNX Runtime and print its inputs, outputs and metadata. " +
		"Without arguments the configured mesh, face detector and segmentation models are checked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = configuredModels()
		}
		metal, _ := cmd.Flags().GetBool("metal")

		if err := inference.Initialize(inference.Options{
			LibraryPath: cfg.OnnxLibrary,
			Provider:    inference.Provider(cfg.Provider),
		}); err != nil {
			return err
		}
		defer inference.Shutdown()

		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range paths {
			if err := checkModel(out, path, metal); err != nil {
				fmt.Fprintf(out, "FAILED %s: %v\n\n", path, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d models failed", failed, len(paths))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("metal", false, "Also try importing each model with go-metal")
	modelsCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(modelsCmd)
}

func configuredModels() []string {
	var paths []string
	for _, p := range []string{cfg.MeshModel, cfg.FaceDetectorModel, cfg.BodyModel, cfg.HairModel} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func checkModel(out io.Writer, path string, metal bool) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	info, err := inference.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  Inputs (%d):\n", len(info.Inputs))
	for _, in := range info.Inputs {
		fmt.Fprintf(out, "    %s: shape=%v, type=%v\n", in.Name, in.Dimensions, in.DataType)
	}
	fmt.Fprintf(out, "  Outputs (%d):\n", len(info.Outputs))
	for _, o := range info.Outputs {
		fmt.Fprintf(out, "    %s: shape=%v, type=%v\n", o.Name, o.Dimensions, o.DataType)
	}
	if info.Producer != "" {
		fmt.Fprintf(out, "  Producer: %s (version %d)\n", info.Producer, info.Version)
	}
	if info.Description != "" {
		fmt.Fprintf(out, "  Description: %s\n", info.Description)
	}

	if metal {
		checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(path)
		if err != nil {
			fmt.Fprintf(out, "  go-metal: unsupported (%v)\n", err)
		} else {
			fmt.Fprintf(out, "  go-metal: %d layers, %d weight tensors\n",
				len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
		}
	}
	fmt.Fprintln(out)
	return nil
}
