package merge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/latentforge/animate/ckpt"
	"github.com/latentforge/animate/tensor"
)

// Legacy LDM checkpoints name the VAE, UNet and text-encoder subtrees under
// fixed prefixes and use the CompVis layer naming. The converters below strip
// the prefix and rewrite each key to the diffusers-style naming the pipeline
// parameters use. Unknown keys pass through renamed as far as the rules reach
// and are then handled by the strict/non-strict load policy.

const (
	ldmVAEPrefix  = "first_stage_model."
	ldmUNetPrefix = "model.diffusion_model."
	ldmCLIPPrefix = "cond_stage_model.transformer."
)

var resnetReplacer = strings.NewReplacer(
	"in_layers.0.", "norm1.",
	"in_layers.2.", "conv1.",
	"emb_layers.1.", "time_emb_proj.",
	"out_layers.0.", "norm2.",
	"out_layers.3.", "conv2.",
	"skip_connection.", "conv_shortcut.",
)

var vaeReplacer = strings.NewReplacer(
	"nin_shortcut", "conv_shortcut",
	"norm_out", "conv_norm_out",
	"mid.attn_1.norm.", "mid_block.attentions.0.group_norm.",
	"mid.attn_1.q.", "mid_block.attentions.0.to_q.",
	"mid.attn_1.k.", "mid_block.attentions.0.to_k.",
	"mid.attn_1.v.", "mid_block.attentions.0.to_v.",
	"mid.attn_1.proj_out.", "mid_block.attentions.0.to_out.0.",
	"mid.block_1.", "mid_block.resnets.0.",
	"mid.block_2.", "mid_block.resnets.1.",
)

var (
	vaeDownBlock   = regexp.MustCompile(`down\.(\d+)\.block\.(\d+)\.`)
	vaeDownsample  = regexp.MustCompile(`down\.(\d+)\.downsample\.conv\.`)
	vaeUpBlock     = regexp.MustCompile(`up\.(\d+)\.block\.(\d+)\.`)
	vaeUpsample    = regexp.MustCompile(`up\.(\d+)\.upsample\.conv\.`)
	unetInBlock    = regexp.MustCompile(`^input_blocks\.(\d+)\.(\d+)\.`)
	unetOutBlock   = regexp.MustCompile(`^output_blocks\.(\d+)\.(\d+)\.`)
	unetMidBlock   = regexp.MustCompile(`^middle_block\.(\d+)\.`)
	vaeAttnProjKey = regexp.MustCompile(`attentions\.\d+\.to_(q|k|v|out\.0)\.weight$`)
)

func convertLDMVAE(sd *ckpt.StateDict) *ckpt.StateDict {
	// Decoder up blocks are stored in reverse order; the highest legacy
	// index becomes up_blocks.0.
	maxUp := -1
	out := ckpt.NewStateDict()
	sd.FilterPrefix(ldmVAEPrefix).Range(func(name string, t *tensor.Array) bool {
		if m := vaeUpBlock.FindStringSubmatch(name); m != nil {
			if i, _ := strconv.Atoi(m[1]); i > maxUp {
				maxUp = i
			}
		}
		if m := vaeUpsample.FindStringSubmatch(name); m != nil {
			if i, _ := strconv.Atoi(m[1]); i > maxUp {
				maxUp = i
			}
		}
		return true
	})

	sd.FilterPrefix(ldmVAEPrefix).Range(func(name string, t *tensor.Array) bool {
		name = vaeReplacer.Replace(name)
		name = vaeDownBlock.ReplaceAllString(name, "down_blocks.$1.resnets.$2.")
		name = vaeDownsample.ReplaceAllString(name, "down_blocks.$1.downsamplers.0.conv.")
		name = vaeUpBlock.ReplaceAllStringFunc(name, func(s string) string {
			m := vaeUpBlock.FindStringSubmatch(s)
			i, _ := strconv.Atoi(m[1])
			return fmt.Sprintf("up_blocks.%d.resnets.%s.", maxUp-i, m[2])
		})
		name = vaeUpsample.ReplaceAllStringFunc(name, func(s string) string {
			m := vaeUpsample.FindStringSubmatch(s)
			i, _ := strconv.Atoi(m[1])
			return fmt.Sprintf("up_blocks.%d.upsamplers.0.conv.", maxUp-i)
		})

		// Legacy attention projections are 1x1 convs; the target layers are
		// linear.
		if vaeAttnProjKey.MatchString(name) && t.NDim() == 4 {
			t = t.Clone().Reshape(t.Dim(0), t.Dim(1))
		}
		out.Set(name, t)
		return true
	})
	return out
}

// convertLDMUNet rewrites the CompVis UNet block numbering (a flat list of
// input/middle/output blocks, three per resolution) to the down/mid/up block
// naming, assuming the stable-diffusion layout of two resnets per block.
func convertLDMUNet(sd *ckpt.StateDict) *ckpt.StateDict {
	out := ckpt.NewStateDict()
	sd.FilterPrefix(ldmUNetPrefix).Range(func(name string, t *tensor.Array) bool {
		out.Set(convertUNetKey(name), t)
		return true
	})
	return out
}

func convertUNetKey(name string) string {
	switch {
	case strings.HasPrefix(name, "time_embed.0."):
		name = "time_embedding.linear_1." + name[len("time_embed.0."):]
	case strings.HasPrefix(name, "time_embed.2."):
		name = "time_embedding.linear_2." + name[len("time_embed.2."):]
	case strings.HasPrefix(name, "input_blocks.0.0."):
		name = "conv_in." + name[len("input_blocks.0.0."):]
	case strings.HasPrefix(name, "out.0."):
		name = "conv_norm_out." + name[len("out.0."):]
	case strings.HasPrefix(name, "out.2."):
		name = "conv_out." + name[len("out.2."):]
	case unetMidBlock.MatchString(name):
		m := unetMidBlock.FindStringSubmatch(name)
		rest := name[len(m[0]):]
		switch m[1] {
		case "0":
			name = "mid_block.resnets.0." + rest
		case "1":
			name = "mid_block.attentions.0." + rest
		case "2":
			name = "mid_block.resnets.1." + rest
		}
	case unetInBlock.MatchString(name):
		m := unetInBlock.FindStringSubmatch(name)
		k, _ := strconv.Atoi(m[1])
		rest := name[len(m[0]):]
		block, layer := (k-1)/3, (k-1)%3
		switch {
		case m[2] == "0" && k%3 == 0:
			name = fmt.Sprintf("down_blocks.%d.downsamplers.0.conv.%s", block, strings.TrimPrefix(rest, "op."))
		case m[2] == "0":
			name = fmt.Sprintf("down_blocks.%d.resnets.%d.%s", block, layer, rest)
		default:
			name = fmt.Sprintf("down_blocks.%d.attentions.%d.%s", block, layer, rest)
		}
	case unetOutBlock.MatchString(name):
		m := unetOutBlock.FindStringSubmatch(name)
		k, _ := strconv.Atoi(m[1])
		rest := name[len(m[0]):]
		block, layer := k/3, k%3
		switch {
		case m[2] == "0":
			name = fmt.Sprintf("up_blocks.%d.resnets.%d.%s", block, layer, rest)
		case strings.HasPrefix(rest, "conv."):
			// A trailing conv in slot 1 or 2 is the upsampler.
			name = fmt.Sprintf("up_blocks.%d.upsamplers.0.%s", block, rest)
		default:
			name = fmt.Sprintf("up_blocks.%d.attentions.%d.%s", block, layer, rest)
		}
	}
	return resnetReplacer.Replace(name)
}

func convertLDMCLIP(sd *ckpt.StateDict) *ckpt.StateDict {
	out := ckpt.NewStateDict()
	sd.FilterPrefix(ldmCLIPPrefix).Range(func(name string, t *tensor.Array) bool {
		if !strings.HasPrefix(name, "text_model.") {
			name = "text_model." + name
		}
		out.Set(name, t)
		return true
	})
	return out
}
