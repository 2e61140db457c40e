package assethost

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidTransformation = errors.New("invalid transformation")

// Transformer builds delivery URLs with on-the-fly image effects. It never
// touches the network.
type Transformer struct {
	deliveryBase string
	cloudName    string
}

func NewTransformer(deliveryBase, cloudName string) *Transformer {
	return &Transformer{
		deliveryBase: strings.TrimSuffix(deliveryBase, "/"),
		cloudName:    cloudName,
	}
}

// URL returns {delivery_base}/{cloud}/image/upload/{transformation}/{publicID}
func (t *Transformer) URL(publicID, transformation string) (string, error) {
	if publicID == "" {
		return "", ErrMissingPublicID
	}
	return fmt.Sprintf("%s/%s/image/upload/%s/%s", t.deliveryBase, t.cloudName, transformation, publicID), nil
}

// encodePrompt percent-encodes s the way browsers encode a URI component
func encodePrompt(s string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	return strings.NewReplacer("%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*").Replace(escaped)
}

func BackgroundRemoval() string { return "e_background_removal" }

func Enhance() string { return "e_enhance" }

func ArtFilter(filter string) string { return "e_art:" + filter }

func AutoCrop(height, width string) string {
	return fmt.Sprintf("c_auto,g_auto,h_%s,w_%s", height, width)
}

// GenerativeFill pads the image to ratio. The fill prompt is not sent.
func GenerativeFill(ratio string) string {
	return fmt.Sprintf("ar_%s,c_fill,g_auto", ratio)
}

func GenerativeRemove(prompt string) string {
	return "e_gen_remove:prompt_" + encodePrompt(prompt)
}

func GenerativeReplace(from, to string) string {
	return fmt.Sprintf("e_gen_replace:from_%s;to_%s", encodePrompt(from), encodePrompt(to))
}

func GenerativeRecolor(object, color string) string {
	return fmt.Sprintf("e_gen_recolor:prompt_(%s);to-color_%s;multiple_true", encodePrompt(object), encodePrompt(color))
}

func Extract(prompt string) string {
	return fmt.Sprintf("e_extract:prompt_(%s);multiple_true", encodePrompt(prompt))
}

// Effect names accepted by ParseEffect
const (
	EffectBackgroundRemoval = "background-removal"
	EffectEnhance           = "enhance"
	EffectArt               = "art"
	EffectAutoCrop          = "auto-crop"
	EffectGenerativeFill    = "generative-fill"
	EffectGenerativeRemove  = "generative-remove"
	EffectGenerativeReplace = "generative-replace"
	EffectGenerativeRecolor = "generative-recolor"
	EffectExtract           = "extract"
)

// ParseEffect turns an effect name and its parameters into a transformation
// string
func ParseEffect(effect string, params url.Values) (string, error) {
	require := func(keys ...string) error {
		for _, k := range keys {
			if params.Get(k) == "" {
				return fmt.Errorf("%w: %s requires %q", ErrInvalidTransformation, effect, k)
			}
		}
		return nil
	}

	switch effect {
	case EffectBackgroundRemoval:
		return BackgroundRemoval(), nil
	case EffectEnhance:
		return Enhance(), nil
	case EffectArt:
		if err := require("filter"); err != nil {
			return "", err
		}
		return ArtFilter(params.Get("filter")), nil
	case EffectAutoCrop:
		if err := require("height", "width"); err != nil {
			return "", err
		}
		return AutoCrop(params.Get("height"), params.Get("width")), nil
	case EffectGenerativeFill:
		if err := require("ratio"); err != nil {
			return "", err
		}
		return GenerativeFill(params.Get("ratio")), nil
	case EffectGenerativeRemove:
		if err := require("prompt"); err != nil {
			return "", err
		}
		return GenerativeRemove(params.Get("prompt")), nil
	case EffectGenerativeReplace:
		if err := require("from", "to"); err != nil {
			return "", err
		}
		return GenerativeReplace(params.Get("from"), params.Get("to")), nil
	case EffectGenerativeRecolor:
		if err := require("prompt", "color"); err != nil {
			return "", err
		}
		return GenerativeRecolor(params.Get("prompt"), params.Get("color")), nil
	case EffectExtract:
		if err := require("prompt"); err != nil {
			return "", err
		}
		return Extract(params.Get("prompt")), nil
	}
	return "", fmt.Errorf("%w: unknown effect %q", ErrInvalidTransformation, effect)
}
