package feed

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/breakwatch/internal/model"
)

// Source is a configured feed.
type Source struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	SourceType string   `yaml:"source_type"`
	Keywords   []string `yaml:"keywords"`
}

// LoadCatalog reads a feed catalogue YAML file of the form
//
//	feeds:
//	  - name: city-alerts
//	    url: https://example.com/rss
//	    source_type: rss
//	    keywords: [watermain, burst]
func LoadCatalog(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalogue YAML and fills defaults.
func ParseCatalog(data []byte) ([]Source, error) {
	var wrapper struct {
		Feeds []Source `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "feed: parse catalog")
	}

	out := make([]Source, 0, len(wrapper.Feeds))
	for i, s := range wrapper.Feeds {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" {
			return nil, eris.Errorf("feed: catalog entry %d has no url", i)
		}
		out = append(out, withDefaults(s))
	}
	return out, nil
}

// SourcesFromURLs builds RSS sources from bare URLs sharing one keyword list.
func SourcesFromURLs(urls, keywords []string) []Source {
	var out []Source
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, withDefaults(Source{URL: u, Keywords: keywords}))
	}
	return out
}

func withDefaults(s Source) Source {
	if s.Name == "" {
		s.Name = s.URL
	}
	if s.SourceType == "" {
		s.SourceType = model.SourceTypeRSS
	}
	return s
}
