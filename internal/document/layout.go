package document

import (
	"github.com/starford/idmlkit/internal/models"
	"github.com/starford/idmlkit/internal/part"
)

// Layout is a read-only description of a package.
type Layout struct {
	ActiveLayer string         `json:"active_layer"`
	Layers      []part.Layer   `json:"layers"`
	Spreads     []SpreadLayout `json:"spreads"`
	Stories     []StoryLayout  `json:"stories"`
}

type SpreadLayout struct {
	Name  string          `json:"name"`
	ID    string          `json:"id"`
	Pages []PageLayout    `json:"pages"`
	Items []part.PageItem `json:"items"`
}

type PageLayout struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Face        part.Face          `json:"face"`
	Coordinates models.Coordinates `json:"coordinates"`
}

type StoryLayout struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Elements []ElementLayout `json:"elements"`
}

type ElementLayout struct {
	ID   string `json:"id"`
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// Layout walks the designmap, every spread and every story.
func (p *Package) Layout() (*Layout, error) {
	dm, err := p.Designmap()
	if err != nil {
		return nil, err
	}
	out := &Layout{ActiveLayer: dm.ActiveLayer(), Layers: dm.Layers()}

	spreads, err := p.Spreads()
	if err != nil {
		return nil, err
	}
	for _, sp := range spreads {
		sl := SpreadLayout{Name: sp.Name(), ID: sp.ID(), Items: sp.Items()}
		for _, pg := range sp.Pages() {
			c, err := pg.Coordinates()
			if err != nil {
				return nil, err
			}
			face, _ := pg.Face()
			sl.Pages = append(sl.Pages, PageLayout{ID: pg.ID(), Name: pg.Name(), Face: face, Coordinates: c})
		}
		out.Spreads = append(out.Spreads, sl)
	}

	stories, err := p.StoryTexts()
	if err != nil {
		return nil, err
	}
	for _, st := range stories {
		s, err := p.Story(st.ID)
		if err != nil {
			return nil, err
		}
		sl := StoryLayout{ID: st.ID, Text: st.Text}
		for _, el := range s.Elements() {
			sl.Elements = append(sl.Elements, ElementLayout{ID: el.ID(), Tag: el.Tag(), Text: el.Text()})
		}
		out.Stories = append(out.Stories, sl)
	}
	return out, nil
}

// StoryTexts returns the plain text of every story, ordered by id.
func (p *Package) StoryTexts() ([]models.StoryText, error) {
	ids, err := p.StoryIDs()
	if err != nil {
		return nil, err
	}
	out := make([]models.StoryText, 0, len(ids))
	for _, id := range ids {
		s, err := p.Story(id)
		if err != nil {
			return nil, err
		}
		out = append(out, models.StoryText{ID: id, Text: s.Text()})
	}
	return out, nil
}

// Summary returns the counts the catalog stores for a package.
func (p *Package) Summary() (models.PackageSummary, error) {
	dm, err := p.Designmap()
	if err != nil {
		return models.PackageSummary{}, err
	}
	spreads, err := p.Spreads()
	if err != nil {
		return models.PackageSummary{}, err
	}
	ids, err := p.StoryIDs()
	if err != nil {
		return models.PackageSummary{}, err
	}
	sum := models.PackageSummary{
		Path:        p.path,
		Spreads:     len(spreads),
		Stories:     len(ids),
		ActiveLayer: dm.ActiveLayer(),
	}
	for _, sp := range spreads {
		sum.Pages += len(sp.Pages())
	}
	return sum, nil
}
