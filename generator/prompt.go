package generator

import (
	"fmt"
	"strings"
)

// LinkPlaceholder marks where a mailing link should be inserted. The words
// that follow it, up to the next punctuation, become the link label.
const LinkPlaceholder = "[LIEN]"

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System      string
	User        string
	History     []Message
	Temperature float64
}

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

// BuildPostPrompt turns raw notes (typed or transcribed) into a social post request.
func BuildPostPrompt(seed string) Prompt {
	var sb strings.Builder
	sb.WriteString("Tu es le community manager d'une association locale. ")
	sb.WriteString("Rédige une publication Facebook en français à partir des notes fournies.\n")
	sb.WriteString("Contraintes :\n")
	sb.WriteString("- ton chaleureux et accessible, phrases courtes ;\n")
	sb.WriteString("- 2 à 4 paragraphes, quelques emojis pertinents au maximum ;\n")
	sb.WriteString("- conserve toutes les informations pratiques (dates, lieux, horaires, prix) ;\n")
	sb.WriteString("- termine par 3 hashtags au plus ;\n")
	sb.WriteString("- réponds uniquement avec le texte de la publication, sans commentaire.\n")

	return Prompt{
		System:      sb.String(),
		User:        fmt.Sprintf("Notes :\n%s", strings.TrimSpace(seed)),
		Temperature: 0.8,
	}
}

// BuildRevisionPrompt asks for a full rewrite of the current text following
// the operator's instructions. History carries earlier instructions so the
// model does not undo them.
func BuildRevisionPrompt(current, instructions string, history []Turn) Prompt {
	var sb strings.Builder
	sb.WriteString("Tu es un éditeur. Applique les corrections demandées au texte fourni ")
	sb.WriteString("et renvoie le texte complet corrigé.\n")
	sb.WriteString("- ne modifie que ce qui est demandé ;\n")
	sb.WriteString("- conserve la mise en forme existante et les marqueurs ")
	sb.WriteString(LinkPlaceholder)
	sb.WriteString(" ;\n")
	sb.WriteString("- réponds uniquement avec le texte corrigé.\n")

	var msgs []Message
	for _, t := range history {
		if t.Instructions == "" {
			continue
		}
		msgs = append(msgs, Message{Role: "user", Content: "Correction précédente : " + t.Instructions})
	}

	return Prompt{
		System:  sb.String(),
		User:    fmt.Sprintf("Texte actuel :\n%s\n\nCorrections :\n%s", current, strings.TrimSpace(instructions)),
		History: msgs,
	}
}

// BuildIllustrationPrompt describes the picture to draw for a post.
func BuildIllustrationPrompt(post, style string) string {
	excerpt := post
	if r := []rune(post); len(r) > 1200 {
		excerpt = string(r[:1200])
	}
	return fmt.Sprintf(
		"Illustration pour une publication Facebook, style %s. "+
			"Aucun texte ni lettre dans l'image. Sujet de la publication :\n%s",
		style, excerpt)
}

// BuildEmailPrompt asks for a marketing email: a subject line then a Markdown body.
func BuildEmailPrompt(seed string) Prompt {
	var sb strings.Builder
	sb.WriteString("Tu rédiges des emails marketing en français pour une boutique locale.\n")
	sb.WriteString("Format de réponse obligatoire :\n")
	sb.WriteString("Objet: <objet accrocheur de moins de 70 caractères>\n\n")
	sb.WriteString("<corps de l'email en Markdown>\n")
	sb.WriteString("Contraintes :\n")
	sb.WriteString("- commence par une salutation, termine par une formule de politesse ;\n")
	sb.WriteString("- place le marqueur ")
	sb.WriteString(LinkPlaceholder)
	sb.WriteString(" suivi de quelques mots là où un lien doit apparaître, ")
	sb.WriteString("par exemple « ")
	sb.WriteString(LinkPlaceholder)
	sb.WriteString(" découvrir la boutique. » ;\n")
	sb.WriteString("- n'ajoute pas de mention de désinscription, elle est ajoutée automatiquement.\n")

	return Prompt{
		System:      sb.String(),
		User:        fmt.Sprintf("Sujet de l'email :\n%s", strings.TrimSpace(seed)),
		Temperature: 0.7,
	}
}
