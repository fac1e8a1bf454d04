package autocomplete

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ppalone/ytsearch"

	"github.com/solmari/sonata/internal/utils"
)

const maxChoices = 25 // Discord's cap on autocomplete choices

// Suggest builds autocomplete choices for the play command: matching
// configured keyword aliases first, then live YouTube search results.
func Suggest(ctx context.Context, query string, keywords map[string]string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxChoices)

	words := make([]string, 0, len(keywords))
	for w := range keywords {
		words = append(words, w)
	}
	sort.Strings(words)
	lq := strings.ToLower(strings.TrimSpace(query))
	for _, w := range words {
		if lq == "" || strings.Contains(strings.ToLower(w), lq) {
			out = append(out, &discordgo.ApplicationCommandOptionChoice{
				Name:  "Keyword: " + w,
				Value: w,
			})
		}
	}

	if lq == "" || strings.HasPrefix(lq, "http") || len(out) >= maxChoices {
		return clip(out)
	}

	sctx, cancel := context.WithTimeout(ctx, 2300*time.Millisecond)
	defer cancel()
	c := ytsearch.NewClient(nil)
	r, err := c.Search(sctx, query)
	if err != nil {
		return clip(out)
	}
	seen := make(map[string]bool)
	for _, v := range r.Results {
		if seen[v.VideoID] {
			continue
		}
		seen[v.VideoID] = true
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate(v.Title, 100),
			Value: "https://www.youtube.com/watch?v=" + v.VideoID,
		})
		if len(out) >= maxChoices {
			break
		}
	}
	return clip(out)
}

func clip(out []*discordgo.ApplicationCommandOptionChoice) []*discordgo.ApplicationCommandOptionChoice {
	if len(out) > maxChoices {
		out = out[:maxChoices]
	}
	return out
}
