package compose

import (
	"context"
	"fmt"
	"time"

	"auto_social_publisher/config"
	"auto_social_publisher/generator"
	"auto_social_publisher/publisher"
)

const (
	optGenerate = "Générer"
	optAttach   = "Joindre"
	optBack     = "Retour"
	optYes      = "Oui"
	optNo       = "Non"

	previewLimit = 3500
)

// PostGenerator drafts and illustrates posts. *generator.Generator
// implements it.
type PostGenerator interface {
	Draft(ctx context.Context, seed string) (generator.Draft, error)
	Illustrate(ctx context.Context, draft generator.Draft, style string) [][]byte
}

// PageSink publishes to a social page. *publisher.Facebook implements it.
type PageSink interface {
	Publish(ctx context.Context, post publisher.Post) (publisher.Receipt, error)
	Schedule(ctx context.Context, post publisher.Post, when time.Time) (publisher.Receipt, error)
	CrossPost(ctx context.Context, rec publisher.Receipt, groups []config.Group) []error
}

type PostConfig struct {
	Styles []string
	Groups []config.Group
}

// PostPolicy composes a page post: illustration step, evening/morning slot,
// optional cross-posting into groups on immediate publication.
func PostPolicy(gen PostGenerator, sink PageSink, cfg PostConfig) *Policy {
	styles := cfg.Styles
	if len(styles) == 0 {
		styles = []string{"Réaliste"}
	}
	return &Policy{
		Kind:       "post",
		Welcome:    "Prêt pour une publication Facebook !",
		SeedPrompt: "Envoyez le texte de départ, par écrit ou en message vocal.",
		Menu: Menu{
			Edit:     "Modifier",
			Enrich:   "Illustrer",
			Publish:  "Publier",
			Schedule: "Programmer",
			Finish:   "Terminer",
		},
		Published: "✅ Publication effectuée.",
		Scheduled: "📅 Publication programmée le %s.",

		Draft:   gen.Draft,
		Preview: previewPost,
		Slot:    NextPostSlot,
		Enrich: func(ctx context.Context, f *Flow) error {
			return illustrate(ctx, f, gen, styles)
		},
		Publish: func(ctx context.Context, f *Flow) (Receipt, error) {
			groups, err := pickGroups(ctx, f, cfg.Groups)
			if err != nil {
				return Receipt{}, err
			}
			rec, err := sink.Publish(ctx, postOf(f.Session))
			if err != nil {
				return Receipt{}, err
			}
			out := Receipt{ID: rec.PostID, URL: rec.URL}
			if len(groups) > 0 {
				for _, err := range sink.CrossPost(ctx, rec, groups) {
					if err != nil {
						out.Warnings = append(out.Warnings, "Partage impossible : "+err.Error())
					}
				}
			}
			return out, nil
		},
		Schedule: func(ctx context.Context, f *Flow, when time.Time) (Receipt, error) {
			rec, err := sink.Schedule(ctx, postOf(f.Session), when)
			if err != nil {
				return Receipt{}, err
			}
			return Receipt{ID: rec.PostID, URL: rec.URL, When: when}, nil
		},
	}
}

func postOf(s *Session) publisher.Post {
	return publisher.Post{Message: s.Draft.Body, Images: s.Attachments.Images()}
}

func previewPost(s *Session) string {
	text := truncate(s.Draft.Body, previewLimit)
	if n := s.Attachments.Len(); n > 0 {
		text += fmt.Sprintf("\n\n📎 %d image(s) jointe(s)", n)
	}
	return text
}

// illustrate offers generated candidates (which replace the attachments) or
// user photos (which are appended).
func illustrate(ctx context.Context, f *Flow, gen PostGenerator, styles []string) error {
	choice, err := f.Choose(ctx, "Comment illustrer la publication ?", []string{optGenerate, optAttach, optBack})
	if err != nil {
		return err
	}
	switch choice {
	case optGenerate:
		style, err := f.Choose(ctx, "Choisissez un style :", styles)
		if err != nil {
			return err
		}
		f.Notify(ctx, "Génération des illustrations en cours…")
		candidates := gen.Illustrate(ctx, f.Session.Draft, style)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(candidates) == 0 {
			f.Notify(ctx, "Aucune image n'a pu être générée, les illustrations sont inchangées.")
			return nil
		}
		img, err := f.Image(ctx, "Choisissez une illustration :", candidates)
		if err != nil {
			return err
		}
		f.Session.Attachments.Replace(img)
		f.Notify(ctx, "🖼️ Illustration retenue.")
	case optAttach:
		for {
			img, err := f.Photo(ctx, "Envoyez une photo.")
			if err != nil {
				return err
			}
			f.Session.Attachments.Append(img)
			more, err := f.Choose(ctx, fmt.Sprintf("Photo ajoutée (%d au total). Ajouter une autre photo ?", f.Session.Attachments.Len()), []string{optYes, optNo})
			if err != nil {
				return err
			}
			if more == optNo {
				return nil
			}
		}
	}
	return nil
}

// pickGroups asks which configured groups also get the post. Nothing is
// asked when no group is configured.
func pickGroups(ctx context.Context, f *Flow, groups []config.Group) ([]config.Group, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	names := make([]string, len(groups))
	byName := make(map[string]config.Group, len(groups))
	for i, g := range groups {
		names[i] = g.Name
		byName[g.Name] = g
	}
	picked, err := f.Multi(ctx, "Partager aussi dans des groupes ? Choisissez puis terminez.", names)
	if err != nil {
		return nil, err
	}
	out := make([]config.Group, 0, len(picked))
	for _, name := range picked {
		out = append(out, byName[name])
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
