package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/latentforge/animate/ckpt"
)

// MotionModuleKeyMarker identifies temporal-attention parameters inside a
// motion-module checkpoint. The motion module is the only permitted source
// of that parameter subtree.
const MotionModuleKeyMarker = "motion_modules."

var (
	// ErrUnexpectedKeys is returned when a motion-module checkpoint carries
	// keys outside the motion subtree that the UNet does not know.
	ErrUnexpectedKeys = errors.New("unexpected keys in motion module checkpoint")
	// ErrLoRAFormat is returned for LoRA paths without the required
	// .safetensors suffix.
	ErrLoRAFormat = errors.New("lora checkpoint must be a .safetensors file")
)

// MotionLoRA is one motion-LoRA checkpoint with its blend strength.
type MotionLoRA struct {
	Path  string
	Alpha float64
}

// Options selects which checkpoints to merge. Every field is independently
// optional; the zero value merges nothing.
type Options struct {
	MotionModulePath string
	MotionLoRAs      []MotionLoRA
	DreamboothPath   string
	LoRAPath         string
	LoRAAlpha        float64
}

// LoadWeights merges the configured checkpoints into the pipeline, in order:
// motion module, dreambooth full model, image LoRA, motion LoRAs.
func LoadWeights(p *Pipeline, opts Options) error {
	if err := loadMotionModule(p, opts.MotionModulePath); err != nil {
		return err
	}
	if err := loadDreambooth(p, opts.DreamboothPath); err != nil {
		return err
	}
	if err := loadLoRA(p, opts.LoRAPath, opts.LoRAAlpha); err != nil {
		return err
	}
	for _, ml := range opts.MotionLoRAs {
		if err := loadMotionLoRA(p, ml); err != nil {
			return err
		}
	}
	return nil
}

// loadMotionModule filters the checkpoint to the motion subtree and loads it
// into the UNet non-strictly. Any key the UNet does not consume is fatal:
// a motion checkpoint carrying foreign keys would silently shadow later
// merges otherwise.
func loadMotionModule(p *Pipeline, path string) error {
	motion := ckpt.NewStateDict()
	if path != "" {
		slog.Info("loading motion module", "path", path)
		sd, err := ckpt.LoadStateDict(path)
		if err != nil {
			return fmt.Errorf("motion module: %w", err)
		}
		motion = sd.Filter(MotionModuleKeyMarker)
	}

	_, unexpected, err := p.UNet.LoadStateDict(motion, false)
	if err != nil {
		return fmt.Errorf("motion module: %w", err)
	}
	if len(unexpected) > 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedKeys, strings.Join(unexpected, ", "))
	}
	return nil
}

// loadDreambooth splits a full-model checkpoint into its VAE, UNet and text
// encoder subtrees, converts each from the legacy LDM naming to the target
// naming, and loads them. The UNet load is non-strict because a dreambooth
// source has no motion-module keys.
func loadDreambooth(p *Pipeline, path string) error {
	if path == "" {
		return nil
	}
	slog.Info("loading dreambooth model", "path", path)
	sd, err := ckpt.LoadStateDict(path)
	if err != nil {
		return fmt.Errorf("dreambooth: %w", err)
	}

	if _, _, err := p.VAE.LoadStateDict(convertLDMVAE(sd), true); err != nil {
		return fmt.Errorf("dreambooth vae: %w", err)
	}
	if _, _, err := p.UNet.LoadStateDict(convertLDMUNet(sd), false); err != nil {
		return fmt.Errorf("dreambooth unet: %w", err)
	}
	if _, _, err := p.TextEncoder.LoadStateDict(convertLDMCLIP(sd), true); err != nil {
		return fmt.Errorf("dreambooth text encoder: %w", err)
	}
	return nil
}

func loadLoRA(p *Pipeline, path string, alpha float64) error {
	if path == "" {
		return nil
	}
	if !strings.HasSuffix(path, ".safetensors") {
		return fmt.Errorf("%w: %s", ErrLoRAFormat, path)
	}
	slog.Info("loading lora", "path", path, "alpha", alpha)
	sd, err := ckpt.LoadStateDict(path)
	if err != nil {
		return fmt.Errorf("lora: %w", err)
	}
	return applyLoRA(p, sd, alpha)
}

func loadMotionLoRA(p *Pipeline, ml MotionLoRA) error {
	slog.Info("loading motion lora", "path", ml.Path, "alpha", ml.Alpha)
	sd, err := ckpt.LoadStateDict(ml.Path)
	if err != nil {
		return fmt.Errorf("motion lora: %w", err)
	}
	return applyMotionLoRA(p.UNet, sd, ml.Alpha)
}
