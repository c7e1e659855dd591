package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"pixguard/internal/config"
)

const (
	// CLIP preprocessing expects a 224x224 crop normalized with the
	// training set statistics below.
	clipImageSize     = 224
	clipContextLength = 77
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// The ONNX Runtime environment is process-wide and must be initialized at
// most once, regardless of how many providers are constructed.
var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

func initializeRuntime(libPath string) error {
	ortEnvOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

type ortProvider struct {
	dim    int
	vision *ort.DynamicAdvancedSession
	text   *ort.DynamicAdvancedSession
	tk     *tokenizer.Tokenizer
	cohere TextEmbedder
}

func newORTProvider(cfg *config.Config) (*ortProvider, error) {
	fp := cfg.Fingerprint
	if fp.ModelPath == "" {
		return nil, errors.New("fingerprint.model_path is not configured")
	}
	if err := initializeRuntime(fp.ONNXRuntimeLibPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	vision, err := ort.NewDynamicAdvancedSession(
		fp.ModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("load vision model: %w", err)
	}

	provider := &ortProvider{
		dim:    fp.EmbeddingDim,
		vision: vision,
	}

	switch fp.TextBackend {
	case "cohere":
		provider.cohere = newCohereTextEmbedder(fp.CohereAPIKey, fp.CohereModel)
	default:
		if fp.TextModelPath == "" || fp.TokenizerPath == "" {
			vision.Destroy()
			return nil, errors.New("fingerprint.text_model_path and tokenizer_path are required for the onnx text backend")
		}
		text, err := ort.NewDynamicAdvancedSession(
			fp.TextModelPath,
			[]string{"input_ids", "attention_mask"},
			[]string{"text_embeds"},
			nil,
		)
		if err != nil {
			vision.Destroy()
			return nil, fmt.Errorf("load text model: %w", err)
		}
		tk, err := pretrained.FromFile(fp.TokenizerPath)
		if err != nil {
			vision.Destroy()
			text.Destroy()
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		provider.text = text
		provider.tk = tk
	}

	return provider, nil
}

func (p *ortProvider) Dim() int { return p.dim }

func (p *ortProvider) Close() error {
	var errs []error
	if p.vision != nil {
		if err := p.vision.Destroy(); err != nil {
			errs = append(errs, err)
		}
		p.vision = nil
	}
	if p.text != nil {
		if err := p.text.Destroy(); err != nil {
			errs = append(errs, err)
		}
		p.text = nil
	}
	return errors.Join(errs...)
}

// EmbedImage runs the vision tower over a preprocessed 224x224 crop and
// returns the L2-normalized embedding.
func (p *ortProvider) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.vision == nil {
		return nil, errors.New("vision model is closed")
	}

	pixels := preprocessImage(img)
	input, err := ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixels)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.dim)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.vision.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run vision model: %w", err)
	}
	return Normalize(output.GetData()), nil
}

// EmbedText embeds a text snippet, delegating to Cohere when that backend
// is configured and to the local CLIP text tower otherwise.
func (p *ortProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.cohere != nil {
		vec, err := p.cohere.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		return Normalize(vec), nil
	}
	if p.text == nil || p.tk == nil {
		return nil, errors.New("text model is closed")
	}

	ids, mask, err := p.tokenize(text)
	if err != nil {
		return nil, err
	}

	idsTensor, err := ort.NewTensor(ort.NewShape(1, clipContextLength), ids)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(ort.NewShape(1, clipContextLength), mask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.dim)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.text.Run([]ort.Value{idsTensor, maskTensor}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run text model: %w", err)
	}
	return Normalize(output.GetData()), nil
}

func (p *ortProvider) tokenize(text string) ([]int64, []int64, error) {
	encoding, err := p.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenize text: %w", err)
	}

	ids := make([]int64, clipContextLength)
	mask := make([]int64, clipContextLength)
	for i, id := range encoding.Ids {
		if i >= clipContextLength {
			break
		}
		ids[i] = int64(id)
		mask[i] = 1
	}
	return ids, mask, nil
}

// preprocessImage resizes to the CLIP input size and emits CHW-ordered,
// mean/std normalized float32 pixels.
func preprocessImage(img image.Image) []float32 {
	scaled := image.NewRGBA(image.Rect(0, 0, clipImageSize, clipImageSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	pixels := make([]float32, 3*clipImageSize*clipImageSize)
	plane := clipImageSize * clipImageSize
	for y := 0; y < clipImageSize; y++ {
		for x := 0; x < clipImageSize; x++ {
			offset := scaled.PixOffset(x, y)
			idx := y*clipImageSize + x
			for c := 0; c < 3; c++ {
				value := float32(scaled.Pix[offset+c]) / 255.0
				pixels[c*plane+idx] = (value - clipMean[c]) / clipStd[c]
			}
		}
	}
	return pixels
}
