// Package classify implements C3 (Coarse Classifier) and C4 (Fine
// Classifier): the multi-label audio tagger pre-filter and the zero-shot
// audio/text veto-aware scorer that follows it.
package classify

// CoarseModel is the capability abstraction the coarse stage needs:
// {probabilities(samples,sr)→vec, class_index_map}. Any multi-label audio
// tagger exposing these two operations can back it.
type CoarseModel interface {
	Probabilities(samples []float32, sampleRate int) ([]float32, error)
	ClassIndexMap() map[string]int
	Close() error
}

// FineModel is the capability abstraction for C4:
// {embed_text(label)→vec, embed_audio(samples,sr)→vec}.
type FineModel interface {
	EmbedText(label string) ([]float32, error)
	EmbedAudio(samples []float32, sampleRate int) ([]float32, error)
	Close() error
}
