// Package ocr turns preprocessed region images into raw text.
//
// Two engines implement Engine:
//
//   - Tesseract wraps the Tesseract OCR engine via gosseract/v2. The region is
//     treated as a single uniform block of text (page segmentation mode 6),
//     which suits the short numeric readouts the sampler reads.
//   - Ollama sends the region to a vision model served by Ollama and asks
//     for the displayed characters only.
//
// # Prerequisites
//
// Tesseract must be installed with language data for every language used:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-tur
//   - macOS: brew install tesseract tesseract-lang
//
// Set TessdataPrefix (or the TESSDATA_PREFIX environment variable) when the
// traineddata files live outside the default location.
//
// # Languages
//
// Languages are Tesseract codes. The sampler defaults to "tur"; "eng",
// "deu" and the rest work the same way and may be joined with "+".
// The Ollama engine ignores the language.
//
// # Word Regions
//
// Tesseract.RecognizeWords additionally returns each word with its bounding
// box and confidence. If bounding box extraction fails the text is still
// returned with an empty Regions slice.
//
// # Cancellation
//
// Tesseract calls are not interruptible. Recognize checks the context before
// starting and reports a context error if it ended while the engine ran.
package ocr
