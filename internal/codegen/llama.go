package codegen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Sampling defaults follow GPT4All's generate().
const (
	llamaTemp       = 0.7
	llamaTopK       = 40
	llamaTopP       = 0.4
	llamaRepeat     = 1.18
	llamaRepeatLast = 64
	llamaMaxCtx     = 2048
)

// LlamaBackend runs GGUF weights in-process through llama.cpp (yzma).
type LlamaBackend struct {
	mu    sync.Mutex
	model llama.Model
	vocab llama.Vocab
}

// NewLlamaBackend loads the llama.cpp shared libraries from libDir and the
// weights at modelPath.
func NewLlamaBackend(libDir, modelPath string) (*LlamaBackend, error) {
	llama.Load(libDir)
	llama.LogSet(llama.LogSilent())
	llama.Init()

	params := llama.ModelDefaultParams()
	params.NGpuLayers = 99

	model, err := llama.ModelLoadFromFile(modelPath, params)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}

	return &LlamaBackend{
		model: model,
		vocab: llama.ModelGetVocab(model),
	}, nil
}

func (b *LlamaBackend) Name() string { return "llama" }

func (b *LlamaBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model == 0 {
		return "", errors.New("model closed")
	}

	tokens := llama.Tokenize(b.vocab, b.applyTemplate(prompt), true, true)
	if len(tokens) == 0 {
		return "", errors.New("empty prompt")
	}

	ctxSize := uint32(llama.ModelNCtxTrain(b.model))
	if ctxSize == 0 || ctxSize > llamaMaxCtx {
		ctxSize = llamaMaxCtx
	}
	ctxParams := llama.ContextDefaultParams()
	ctxParams.NCtx = ctxSize
	ctxParams.NBatch = 512
	ctxParams.NUbatch = 512

	lctx, err := llama.InitFromModel(b.model, ctxParams)
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	defer llama.Free(lctx)

	if maxPrompt := int(ctxSize) - maxTokens; maxPrompt > 0 && len(tokens) > maxPrompt {
		tokens = tokens[len(tokens)-maxPrompt:]
	}

	sampler := b.sampler()
	defer llama.SamplerFree(sampler)

	if _, err := llama.Decode(lctx, llama.BatchGetOne(tokens)); err != nil {
		return "", fmt.Errorf("prompt decode: %w", err)
	}

	var out []byte
	for i := 0; i < maxTokens; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		token := llama.SamplerSample(sampler, lctx, -1)
		llama.SamplerAccept(sampler, token)

		if llama.VocabIsEOG(b.vocab, token) {
			break
		}

		out = append(out, llama.Detokenize(b.vocab, []llama.Token{token}, false, true)...)

		if _, err := llama.Decode(lctx, llama.BatchGetOne([]llama.Token{token})); err != nil {
			return "", fmt.Errorf("decode step %d: %w", i, err)
		}
	}

	return string(out), nil
}

// applyTemplate wraps the instruction in the model's chat template when it
// ships one; otherwise the raw instruction is used.
func (b *LlamaBackend) applyTemplate(prompt string) string {
	tmpl := llama.ModelChatTemplate(b.model, "")
	if tmpl == "" {
		return prompt
	}

	msgs := []llama.ChatMessage{llama.NewChatMessage("user", prompt)}
	buf := make([]byte, 4*1024)
	n := llama.ChatApplyTemplate(tmpl, msgs, true, buf)
	if n <= 0 {
		return prompt
	}
	if int(n) > len(buf) {
		buf = make([]byte, n)
		n = llama.ChatApplyTemplate(tmpl, msgs, true, buf)
	}
	if n > 0 && int(n) <= len(buf) {
		return string(buf[:n])
	}
	return prompt
}

func (b *LlamaBackend) sampler() llama.Sampler {
	chain := llama.SamplerChainInit(llama.SamplerChainDefaultParams())
	llama.SamplerChainAdd(chain, llama.SamplerInitPenalties(llamaRepeatLast, llamaRepeat, 0.0, 0.0))
	llama.SamplerChainAdd(chain, llama.SamplerInitTopK(llamaTopK))
	llama.SamplerChainAdd(chain, llama.SamplerInitTopP(llamaTopP, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitTempExt(llamaTemp, 0, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitDist(0))
	return chain
}

func (b *LlamaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model != 0 {
		llama.ModelFree(b.model)
		b.model = 0
		llama.Close()
	}
	return nil
}
