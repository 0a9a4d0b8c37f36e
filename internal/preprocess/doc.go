// Package preprocess prepares a cropped display region for OCR.
//
// Process converts the region to grayscale, enhances it, optionally denoises
// it, binarizes it and cleans it up with morphology. Every stage is a pure
// function of its input image and Params, so the whole pipeline is
// deterministic and safe to call from multiple goroutines.
package preprocess
