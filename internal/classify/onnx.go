package classify

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortInitOnce guards the one-time ONNX Runtime environment initialization
// shared by the coarse and fine models, mirroring the single shared-library
// init the reference corpus's ONNX bindings use.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func ensureORTInitialized(sharedLibraryPath string) error {
	ortInitOnce.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXCoarseModel runs a pretrained multi-label audio tagger (e.g. a
// YAMNet/PANNs export) via ONNX Runtime. The session is owned exclusively by
// this model.
type ONNXCoarseModel struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	classMap  map[string]int
	numInputs int
}

// NewONNXCoarseModel loads modelPath and the class index map it was exported
// with.
func NewONNXCoarseModel(sharedLibraryPath, modelPath string, inputSamples int, classMap map[string]int) (*ONNXCoarseModel, error) {
	if err := ensureORTInitialized(sharedLibraryPath); err != nil {
		return nil, fmt.Errorf("coarse model: initialize onnxruntime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(inputSamples)))
	if err != nil {
		return nil, fmt.Errorf("coarse model: create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(classMap))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("coarse model: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"waveform"},
		[]string{"scores"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("coarse model: create session: %w", err)
	}

	return &ONNXCoarseModel{
		session:   session,
		input:     input,
		output:    output,
		classMap:  classMap,
		numInputs: inputSamples,
	}, nil
}

// Probabilities runs one inference over samples, which must already be
// resampled to the model's required rate (typically 16 kHz mono).
func (m *ONNXCoarseModel) Probabilities(samples []float32, sampleRate int) ([]float32, error) {
	dst := m.input.GetData()
	n := copy(dst, samples)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("coarse model: inference: %w", err)
	}
	out := m.output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

// ClassIndexMap returns the label→index mapping the model was exported with.
func (m *ONNXCoarseModel) ClassIndexMap() map[string]int { return m.classMap }

// Close releases ONNX Runtime resources. Safe to call multiple times.
func (m *ONNXCoarseModel) Close() error {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}

// ONNXFineModel runs a CLAP-style zero-shot audio/text model split into two
// ONNX graphs: a text tower invoked once per label at startup and an audio
// tower invoked per window.
type ONNXFineModel struct {
	textSession  *ort.AdvancedSession
	textInput    *ort.Tensor[float32]
	textOutput   *ort.Tensor[float32]
	audioSession *ort.AdvancedSession
	audioInput   *ort.Tensor[float32]
	audioOutput  *ort.Tensor[float32]

	tokenizeText func(label string) []float32
	embedDim     int
	audioSamples int
}

// NewONNXFineModel loads the text-tower and audio-tower graphs. tokenizeText
// converts a label string into the fixed-width token/feature vector the
// text tower expects; callers supply it since tokenization is model-specific
// and out of scope for this package's abstraction.
func NewONNXFineModel(sharedLibraryPath, textModelPath, audioModelPath string, tokenInputWidth, audioSamples, embedDim int, tokenizeText func(string) []float32) (*ONNXFineModel, error) {
	if err := ensureORTInitialized(sharedLibraryPath); err != nil {
		return nil, fmt.Errorf("fine model: initialize onnxruntime: %w", err)
	}

	textIn, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(tokenInputWidth)))
	if err != nil {
		return nil, fmt.Errorf("fine model: create text input tensor: %w", err)
	}
	textOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(embedDim)))
	if err != nil {
		textIn.Destroy()
		return nil, fmt.Errorf("fine model: create text output tensor: %w", err)
	}
	textSession, err := ort.NewAdvancedSession(
		textModelPath,
		[]string{"text_tokens"},
		[]string{"text_embedding"},
		[]ort.Value{textIn},
		[]ort.Value{textOut},
		nil,
	)
	if err != nil {
		textIn.Destroy()
		textOut.Destroy()
		return nil, fmt.Errorf("fine model: create text session: %w", err)
	}

	audioIn, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(audioSamples)))
	if err != nil {
		textSession.Destroy()
		textIn.Destroy()
		textOut.Destroy()
		return nil, fmt.Errorf("fine model: create audio input tensor: %w", err)
	}
	audioOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(embedDim)))
	if err != nil {
		textSession.Destroy()
		textIn.Destroy()
		textOut.Destroy()
		audioIn.Destroy()
		return nil, fmt.Errorf("fine model: create audio output tensor: %w", err)
	}
	audioSession, err := ort.NewAdvancedSession(
		audioModelPath,
		[]string{"waveform"},
		[]string{"audio_embedding"},
		[]ort.Value{audioIn},
		[]ort.Value{audioOut},
		nil,
	)
	if err != nil {
		textSession.Destroy()
		textIn.Destroy()
		textOut.Destroy()
		audioIn.Destroy()
		audioOut.Destroy()
		return nil, fmt.Errorf("fine model: create audio session: %w", err)
	}

	return &ONNXFineModel{
		textSession:  textSession,
		textInput:    textIn,
		textOutput:   textOut,
		audioSession: audioSession,
		audioInput:   audioIn,
		audioOutput:  audioOut,
		tokenizeText: tokenizeText,
		embedDim:     embedDim,
		audioSamples: audioSamples,
	}, nil
}

// EmbedText runs the text tower once for label.
func (m *ONNXFineModel) EmbedText(label string) ([]float32, error) {
	tokens := m.tokenizeText(label)
	dst := m.textInput.GetData()
	n := copy(dst, tokens)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	if err := m.textSession.Run(); err != nil {
		return nil, fmt.Errorf("fine model: text inference for %q: %w", label, err)
	}
	out := make([]float32, m.embedDim)
	copy(out, m.textOutput.GetData())
	return out, nil
}

// EmbedAudio runs the audio tower for a ~1s window.
func (m *ONNXFineModel) EmbedAudio(samples []float32, sampleRate int) ([]float32, error) {
	dst := m.audioInput.GetData()
	n := copy(dst, samples)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	if err := m.audioSession.Run(); err != nil {
		return nil, fmt.Errorf("fine model: audio inference: %w", err)
	}
	out := make([]float32, m.embedDim)
	copy(out, m.audioOutput.GetData())
	return out, nil
}

// Close releases both ONNX Runtime sessions.
func (m *ONNXFineModel) Close() error {
	if m.textSession != nil {
		m.textSession.Destroy()
		m.textSession = nil
	}
	if m.textInput != nil {
		m.textInput.Destroy()
		m.textInput = nil
	}
	if m.textOutput != nil {
		m.textOutput.Destroy()
		m.textOutput = nil
	}
	if m.audioSession != nil {
		m.audioSession.Destroy()
		m.audioSession = nil
	}
	if m.audioInput != nil {
		m.audioInput.Destroy()
		m.audioInput = nil
	}
	if m.audioOutput != nil {
		m.audioOutput.Destroy()
		m.audioOutput = nil
	}
	return nil
}
