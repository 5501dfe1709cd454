package conftools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func decoderHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
	dc.ErrorUnused = true
	// Environment variables arrive as strings; let them decode onto bool and
	// duration fields.
	dc.WeaklyTypedInput = true
}

// Load decodes parsed command-line flags and bound environment variables onto
// cfg. Values are resolved with the precedence: flags > environment > defaults.
func Load(cfg interface{}) error {
	flag.Parse()

	err := viper.BindPFlags(flag.CommandLine)
	if err != nil {
		return err
	}

	return viper.Unmarshal(cfg, decoderHook)
}

// Format returns a human-readable printout of all configuration options.
// Values of keys listed in maskedKeys are masked with Mask.
func Format(maskedKeys []string) []string {
	masked := func(key string) bool {
		for _, maskedKey := range maskedKeys {
			if strings.EqualFold(maskedKey, key) {
				return true
			}
		}
		return false
	}

	var keys sort.StringSlice = viper.AllKeys()

	printed := make([]string, 0, len(keys))

	keys.Sort()
	for _, key := range keys {
		if masked(key) {
			printed = append(printed, fmt.Sprintf("%s: %s", key, Mask(viper.GetString(key))))
		} else {
			printed = append(printed, fmt.Sprintf("%s: %v", key, viper.Get(key)))
		}
	}

	return printed
}

// Mask hides the interior of a secret, keeping the first and last character
// so that the right credential can be recognized in logs.
func Mask(secret string) string {
	if len(secret) < 3 {
		return "***"
	}
	return secret[:1] + strings.Repeat("*", len(secret)-2) + secret[len(secret)-1:]
}
