package compose

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"auto_social_publisher/config"
	"auto_social_publisher/generator"
	"auto_social_publisher/mailing"
)

// EmailGenerator drafts marketing emails. *generator.Generator implements it.
type EmailGenerator interface {
	DraftEmail(ctx context.Context, seed string) (generator.Draft, error)
}

// MailSink schedules mailings. *mailing.Odoo implements it.
type MailSink interface {
	Schedule(ctx context.Context, m mailing.Mailing) (mailing.Receipt, error)
}

type EmailConfig struct {
	Lists    []config.MailingList
	Footer   Footer
	Location *time.Location
}

// EmailPolicy composes a mailing: link step, weekly Wednesday slot, and
// immediate sending as a mailing scheduled now.
func EmailPolicy(gen EmailGenerator, sink MailSink, cfg EmailConfig) *Policy {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	// unscheduled is a mailing Odoo created but did not schedule. The next
	// attempt rewrites it.
	var unscheduled int
	send := func(ctx context.Context, f *Flow, when time.Time) (Receipt, error) {
		audience, err := pickAudience(ctx, f, cfg.Lists)
		if err != nil {
			return Receipt{}, err
		}
		m, err := mailingOf(f.Session, cfg.Footer, when, audience)
		if err != nil {
			return Receipt{}, err
		}
		m.ID = unscheduled
		rec, err := sink.Schedule(ctx, m)
		if err != nil {
			unscheduled = rec.ID
			return Receipt{}, err
		}
		unscheduled = 0
		return Receipt{ID: strconv.Itoa(rec.ID), When: when, Warnings: rec.Warnings}, nil
	}

	return &Policy{
		Kind:       "email",
		Welcome:    "Prêt pour l'email marketing !",
		SeedPrompt: "Décrivez l'email à préparer, par écrit ou en message vocal.",
		Menu: Menu{
			Edit:     "Modifier",
			Enrich:   "Liens",
			Publish:  "Publier",
			Schedule: "Programmer",
			Finish:   "Terminer",
		},
		Published: "✅ Email envoyé.",
		Scheduled: "📅 Email programmé le %s.",

		Draft:   gen.DraftEmail,
		Preview: previewEmail,
		Slot: func(now time.Time) time.Time {
			return NextMailingSlot(now, loc)
		},
		Enrich: addLinks,
		Publish: func(ctx context.Context, f *Flow) (Receipt, error) {
			return send(ctx, f, f.Now().UTC())
		},
		Schedule: send,
	}
}

func mailingOf(s *Session, footer Footer, when time.Time, audience []int) (mailing.Mailing, error) {
	links := s.Links.Links()
	body, err := generator.RenderHTML(RenderEmailBody(s.Draft.Body, links, footer))
	if err != nil {
		return mailing.Mailing{}, fmt.Errorf("render email: %w", err)
	}
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return mailing.Mailing{
		Subject:     s.Draft.Subject,
		Body:        body,
		Links:       urls,
		When:        when.UTC(),
		AudienceIDs: audience,
		BodyIsHTML:  true,
	}, nil
}

func addLinks(ctx context.Context, f *Flow) error {
	text, err := f.Text(ctx, "Fournissez les liens séparés par des espaces ou retours à la ligne.\nAjoutez un libellé devant un lien pour le nommer : « Billetterie : example.org/billets ».")
	if err != nil {
		return err
	}
	links := ParseLinks(text)
	if len(links) == 0 {
		f.Notify(ctx, "Aucun lien reconnu.")
		return nil
	}
	n := f.Session.Links.Merge(links...)
	f.Notify(ctx, fmt.Sprintf("🔗 %d lien(s) enregistré(s), %d au total.", n, f.Session.Links.Len()))
	return nil
}

// pickAudience asks for target lists when more than one is configured. An
// empty pick cancels the delivery.
func pickAudience(ctx context.Context, f *Flow, lists []config.MailingList) ([]int, error) {
	switch len(lists) {
	case 0:
		return nil, nil
	case 1:
		return []int{lists[0].ID}, nil
	}
	names := make([]string, len(lists))
	byName := make(map[string]int, len(lists))
	for i, l := range lists {
		names[i] = l.Name
		byName[l.Name] = l.ID
	}
	picked, err := f.Multi(ctx, "À quelles listes envoyer ? Choisissez puis terminez.", names)
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 {
		f.Notify(ctx, "Aucune liste sélectionnée, envoi annulé.")
		return nil, errBackToDraft
	}
	ids := make([]int, len(picked))
	for i, name := range picked {
		ids[i] = byName[name]
	}
	return ids, nil
}

func previewEmail(s *Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objet : %s\n\n%s", s.Draft.Subject, truncate(s.Draft.Body, previewLimit))
	if links := s.Links.Links(); len(links) > 0 {
		b.WriteString("\n\n🔗 Liens :")
		for _, l := range links {
			if l.Label != "" {
				fmt.Fprintf(&b, "\n- %s : %s", l.Label, l.URL)
			} else {
				fmt.Fprintf(&b, "\n- %s", l.URL)
			}
		}
	}
	return b.String()
}
