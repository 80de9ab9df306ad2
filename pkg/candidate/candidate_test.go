package candidate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitKey_FlatField(t *testing.T) {
	group, field := splitKey("title")
	require.Nil(t, group)
	require.Equal(t, "title", field)
}

func TestSplitKey_GroupField(t *testing.T) {
	group, field := splitKey("reviews.author")
	require.NotNil(t, group)
	require.Equal(t, "reviews", *group)
	require.Equal(t, "author", field)
}

func TestNew_DefaultsThreshold(t *testing.T) {
	r := New(nil, Config{})
	require.Equal(t, 3, r.cfg.PromotionThreshold)
}

func TestNew_KeepsConfiguredThreshold(t *testing.T) {
	r := New(nil, Config{PromotionThreshold: 5})
	require.Equal(t, 5, r.cfg.PromotionThreshold)
}
