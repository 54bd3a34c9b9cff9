package orchestrator

import (
	"fmt"
	"strings"

	"github.com/example/dreamate/internal/ai"
	"github.com/example/dreamate/pkg/models"
)

const (
	// HistoryWindow is the number of trailing turns sent to the model.
	HistoryWindow = 12
	// MaxImages is the number of images attached across the window.
	MaxImages = 2

	quoteMarker      = "【引用】"
	imageOmitted     = "（此处有一张图片）"
	imageUnavailable = "（对方发送了一张图片，但图片暂时无法查看，请结合上下文理解并回应）"
	defaultName      = "角色"
)

const (
	toneClause = "语气要求：口语化、自然、有温度，像真实的人在聊天，不要像客服或助手；" +
		"结合对方刚说的话回应，可以适当追问，但不要连续提问。"
	visionClause = "如果对方发送了图片，请先认真观察图片内容，再结合上下文自然回应；" +
		"看不到图片时，不要编造图片里的细节。"
	formatClause = "输出要求：只用第一人称直接对话，不写旁白、动作或场景描写，" +
		"不要使用括号或星号等舞台指令；每次回复保持简短，控制在30-80个汉字，最多三句话。"
)

// BuildMessages converts the trailing HistoryWindow turns of history into
// chat messages. Only the MaxImages most recent image turns keep their
// image; older ones degrade to a text note.
func BuildMessages(history []models.Message) []ai.ChatMessage {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	// image budget is spent newest first
	keepImage := make([]bool, len(history))
	budget := MaxImages
	for i := len(history) - 1; i >= 0 && budget > 0; i-- {
		if _, ok := history[i].Image(); ok {
			keepImage[i] = true
			budget--
		}
	}

	messages := make([]ai.ChatMessage, 0, len(history))
	for i, turn := range history {
		msg := ai.ChatMessage{Role: ai.RoleUser}
		if turn.Sender == models.SenderAI {
			msg.Role = ai.RoleAssistant
		}

		text := turnText(turn)
		if img, ok := turn.Image(); ok {
			switch {
			case !keepImage[i]:
				text = joinText(text, imageOmitted)
			case img.Base64 != "":
				msg.Images = []ai.Image{{MimeType: img.MimeType, Base64: img.Base64}}
			default:
				text = joinText(text, imageUnavailable)
			}
		}
		if quote := strings.TrimSpace(turn.QuotedBody); quote != "" {
			text = quoteMarker + quote + "\n" + text
		}

		msg.Text = strings.TrimSpace(text)
		if msg.Text == "" && len(msg.Images) == 0 {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func turnText(turn models.Message) string {
	body := strings.TrimSpace(turn.Body)
	if turn.Payload == nil {
		return body
	}
	if _, ok := turn.Payload.(*models.ImagePayload); ok {
		// the image itself is attached or noted separately
		return body
	}
	return turn.Payload.Describe(body)
}

func joinText(text, note string) string {
	if text == "" {
		return note
	}
	return text + "\n" + note
}

// BuildSystemPrompt assembles the system instruction for a persona at the
// given affection level.
func BuildSystemPrompt(persona models.Persona, profile *models.UserProfile, affectionLevel int) string {
	name := strings.TrimSpace(persona.Name)
	if name == "" {
		name = defaultName
	}

	parts := []string{
		fmt.Sprintf("请严格扮演“%s”，具备以下设定：%s", name, strings.TrimSpace(persona.Persona)),
	}

	stage := StageFor(affectionLevel)
	parts = append(parts, fmt.Sprintf("你们当前的关系阶段：%s。%s", stage.Label, stage.PromptHint))

	if mood := strings.TrimSpace(persona.Mood); mood != "" {
		parts = append(parts, fmt.Sprintf("你此刻的心情：%s。", mood))
	}

	if facts := profileFacts(profile); facts != "" {
		parts = append(parts, "关于对方的一些信息（可以在合适时自然参考，但不要逐条复述）："+facts)
	}

	parts = append(parts, toneClause, visionClause, formatClause)
	return strings.Join(parts, "\n\n")
}

func profileFacts(p *models.UserProfile) string {
	if !p.HasFacts() {
		return ""
	}
	var facts []string
	if v := strings.TrimSpace(p.Nickname); v != "" {
		facts = append(facts, "昵称："+v)
	}
	if v := strings.TrimSpace(p.MBTI); v != "" {
		facts = append(facts, "MBTI："+v)
	}
	if v := strings.TrimSpace(p.Zodiac); v != "" {
		facts = append(facts, "星座："+v)
	}
	if v := strings.TrimSpace(p.Birthday); v != "" {
		facts = append(facts, "生日："+v)
	}
	return strings.Join(facts, "；")
}
