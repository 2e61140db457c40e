package assethost

import (
	"net/url"
	"testing"

	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configS3(bucket string) config.S3 {
	return config.S3{
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000/",
		Bucket:    bucket,
		AccessKey: "minio",
		SecretKey: "minio123",
	}
}

func TestTransformerURL(t *testing.T) {
	tr := NewTransformer("https://res.cloudinary.com/", "demo")

	u, err := tr.URL("uploads/cat", BackgroundRemoval())
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/e_background_removal/uploads/cat", u)

	_, err = tr.URL("", Enhance())
	assert.ErrorIs(t, err, ErrMissingPublicID)
}

func TestEffects(t *testing.T) {
	assert.Equal(t, "e_enhance", Enhance())
	assert.Equal(t, "e_art:zorro", ArtFilter("zorro"))
	assert.Equal(t, "c_auto,g_auto,h_300,w_200", AutoCrop("300", "200"))
	assert.Equal(t, "ar_16:9,c_fill,g_auto", GenerativeFill("16:9"))
	assert.Equal(t, "e_gen_remove:prompt_the%20dog", GenerativeRemove("the dog"))
	assert.Equal(t, "e_gen_replace:from_cat;to_a%20big%20dog", GenerativeReplace("cat", "a big dog"))
	assert.Equal(t, "e_gen_recolor:prompt_(red%20car);to-color_blue;multiple_true", GenerativeRecolor("red car", "blue"))
	assert.Equal(t, "e_extract:prompt_(phone);multiple_true", Extract("phone"))
}

func TestEncodePrompt(t *testing.T) {
	assert.Equal(t, "a%20b", encodePrompt("a b"))
	assert.Equal(t, "it's%20(big)!*", encodePrompt("it's (big)!*"))
	assert.Equal(t, "a%2Fb%3Fc%26d", encodePrompt("a/b?c&d"))
	assert.Equal(t, "caf%C3%A9", encodePrompt("café"))
	assert.Equal(t, "-_.~", encodePrompt("-_.~"))
}

func TestParseEffect(t *testing.T) {
	got, err := ParseEffect(EffectAutoCrop, url.Values{"height": {"10"}, "width": {"20"}})
	require.NoError(t, err)
	assert.Equal(t, "c_auto,g_auto,h_10,w_20", got)

	got, err = ParseEffect(EffectGenerativeReplace, url.Values{"from": {"sky"}, "to": {"night sky"}})
	require.NoError(t, err)
	assert.Equal(t, "e_gen_replace:from_sky;to_night%20sky", got)

	got, err = ParseEffect(EffectBackgroundRemoval, nil)
	require.NoError(t, err)
	assert.Equal(t, "e_background_removal", got)

	_, err = ParseEffect(EffectArt, url.Values{})
	assert.ErrorIs(t, err, ErrInvalidTransformation)

	_, err = ParseEffect("sepia", url.Values{})
	assert.ErrorIs(t, err, ErrInvalidTransformation)
}
