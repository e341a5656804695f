package recall

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/glucomem/internal/model"
)

const displayLayout = "2006-01-02 15:04"

// Render formats the bundle as the sectioned text appended to the system
// prompt. An empty bundle renders as "".
func (a *Assembler) Render(b *Bundle) string {
	if b == nil || b.Empty() {
		return ""
	}
	var sb strings.Builder

	if p := b.Profile; p != nil {
		sb.WriteString("\n\n## 用户档案 (Profile)\n")
		if p.Username != "" {
			fmt.Fprintf(&sb, "- 用户名: %s\n", p.Username)
		}
		if p.DiabetesType != "" {
			fmt.Fprintf(&sb, "- 糖尿病类型: %s\n", p.DiabetesType)
		}
		if p.Medication != "" {
			fmt.Fprintf(&sb, "- 当前用药: %s\n", p.Medication)
		}
		if p.TargetBloodSugarMin > 0 && p.TargetBloodSugarMax > 0 {
			fmt.Fprintf(&sb, "- 目标血糖范围: %s-%s mmol/L\n", num(p.TargetBloodSugarMin), num(p.TargetBloodSugarMax))
		}
		if p.HealthNotes != "" {
			fmt.Fprintf(&sb, "- 健康备注: %s\n", p.HealthNotes)
		}
	}

	if b.Preferences.Len() > 0 {
		sb.WriteString("\n## 用户偏好与禁忌 (Preferences)\n")
		for _, group := range []struct {
			title string
			prefs []model.Preference
		}{
			{"过敏源", b.Preferences.Allergies},
			{"不喜欢", b.Preferences.Dislikes},
			{"习惯", b.Preferences.Habits},
			{"日程", b.Preferences.Schedules},
		} {
			if len(group.prefs) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "### %s:\n", group.title)
			for _, p := range group.prefs {
				fmt.Fprintf(&sb, "- %s\n", p.Content)
			}
		}
	}

	if len(b.Patterns) > 0 {
		sb.WriteString("\n## 行为模式 (Patterns)\n")
		for _, p := range b.Patterns {
			fmt.Fprintf(&sb, "- [%s] %s (置信度: %s, 证据数: %d)\n", p.Type, p.Description, p.Confidence, p.EvidenceCount)
		}
	}

	if len(b.BloodSugar) > 0 {
		sb.WriteString("\n## 最近的血糖记录 (Recent Blood Sugar)\n")
		for _, r := range b.BloodSugar {
			fmt.Fprintf(&sb, "- %s: %s mmol/L (%s)\n", a.when(r.MeasuredAt), num(r.Value), r.MeasurementType)
		}
	}

	if len(b.Events) > 0 {
		sb.WriteString("\n## 最近的事件 (Recent Events)\n")
		for _, e := range b.Events {
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", e.Type, e.Summary, a.when(e.EventTime))
		}
	}

	if len(b.Reinforce) > 0 || len(b.Avoid) > 0 {
		sb.WriteString("\n## 历史建议反馈 (Feedback History)\n")
		sb.WriteString("**重要**: 根据以下反馈优化你的建议\n")
		if len(b.Reinforce) > 0 {
			sb.WriteString("\n### 效果好的建议（优先推荐类似方案）:\n")
			for _, f := range b.Reinforce {
				fmt.Fprintf(&sb, "- \"%s\" - 评分%d/10%s\n", f.SuggestionContent, *f.EffectivenessScore, improvement(f))
				outcome(&sb, f)
			}
		}
		if len(b.Avoid) > 0 {
			sb.WriteString("\n### 效果差的建议（避免重复推荐）:\n")
			for _, f := range b.Avoid {
				fmt.Fprintf(&sb, "- \"%s\" - 评分%d/10\n", f.SuggestionContent, *f.EffectivenessScore)
				outcome(&sb, f)
			}
		}
	}

	return sb.String()
}

func (a *Assembler) when(t time.Time) string {
	return t.In(a.loc).Format(displayLayout)
}

func improvement(f model.FeedbackRecord) string {
	if f.BloodSugarBefore == nil || f.BloodSugarAfter == nil {
		return ""
	}
	return fmt.Sprintf(" (血糖从%s降到%s)", num(*f.BloodSugarBefore), num(*f.BloodSugarAfter))
}

func outcome(sb *strings.Builder, f model.FeedbackRecord) {
	if f.OutcomeDescription != "" {
		fmt.Fprintf(sb, "  用户反馈: %s\n", f.OutcomeDescription)
	}
}

// num prints 6.5 as "6.5" and 7 as "7".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
