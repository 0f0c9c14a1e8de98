package document

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/part"
)

// AddPartWithContent creates a new part of the given kind whose root holds
// one element with id elementID tagged tag. Both ids are registered in the
// reference index and the part file is written into the working copy.
// Only stories can be created. Called outside a transaction it runs in one
// of its own.
func (p *Package) AddPartWithContent(kind part.Kind, partID, elementID, tag string) (*part.Part, error) {
	if kind != part.KindStory {
		return nil, fmt.Errorf("document: add %s part: %w", kind, apperr.ErrUnsupportedKind)
	}
	s, err := p.AddStoryWithContent(partID, elementID, tag)
	if err != nil {
		return nil, err
	}
	return s.Part, nil
}

// AddStoryWithContent creates story storyID holding an empty element
// elementID tagged tag. The designmap and tag declarations are updated and
// synchronized.
func (p *Package) AddStoryWithContent(storyID, elementID, tag string) (*part.Story, error) {
	var story *part.Story
	err := p.Run(func(tx *Tx) error {
		s, err := tx.Package().addStory(storyID, elementID, tag)
		story = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return story, nil
}

func (p *Package) addStory(storyID, elementID, tag string) (*part.Story, error) {
	if storyID == "" || elementID == "" || tag == "" {
		return nil, errors.New("document: story id, element id and tag are required")
	}
	name := part.StoryName(storyID)
	idx, err := p.Refs()
	if err != nil {
		return nil, err
	}
	for _, id := range []string{storyID, elementID} {
		if ref, err := idx.Resolve(id); err == nil {
			return nil, &apperr.DuplicateIDError{ID: id, Existing: ref.Part.Name(), Part: name}
		}
	}
	if storyID == elementID {
		return nil, &apperr.DuplicateIDError{ID: elementID, Existing: name, Part: name}
	}
	if _, err := p.Part(name); err == nil {
		return nil, fmt.Errorf("document: %s: %w", name, apperr.ErrAlreadyExists)
	}

	dm, err := p.Designmap()
	if err != nil {
		return nil, err
	}
	story := part.NewStory(storyID, elementID, tag, dm.DOMVersion(), p.wc.store)
	if err := story.Synchronize(); err != nil {
		return nil, err
	}
	p.parts[name] = story.Part
	if err := idx.AddPart(story.Part); err != nil {
		return nil, err
	}

	dm.AddStory(storyID)
	if err := dm.Synchronize(); err != nil {
		return nil, err
	}

	tags, err := p.Tags()
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		p.logger.Debug("package has no tag declarations", slog.String("tag", tag))
	case err != nil:
		return nil, err
	default:
		if node, created := tags.Ensure(tag); created {
			if err := idx.Register(tags.Part, node); err != nil {
				return nil, err
			}
			if err := tags.Synchronize(); err != nil {
				return nil, err
			}
		}
	}

	p.logger.Debug("story added", slog.String("story", storyID), slog.String("element", elementID))
	return story, nil
}
