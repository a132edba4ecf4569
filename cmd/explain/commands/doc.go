// Package commands implements the explain CLI.
//
// Every subcommand loads the run configuration, the dataset listing and the
// classifier, renders its figures and writes them to the output directory
// and/or an OpenCV window.
//
//	explain saliency --checkpoint food11.pth --dataset ./food-11
//	explain filters --layer 15 --filter 0 --show
//	explain lime --onnx-model food11.onnx
//	explain all --output-dir ./figures
package commands
