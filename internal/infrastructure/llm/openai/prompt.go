package openai

import (
	"fmt"
	"strings"

	"github.com/clinicore/medrag/internal/core/domain"
)

const answerSystemPrompt = `你是一个专业的医疗问诊助手，具备丰富的医学知识。你的任务是：

1. **理解病情**：仔细分析用户的症状描述
2. **信息补全**：如果信息不完整，主动询问关键信息（症状持续时间、严重程度、伴随症状等）
3. **知识检索**：基于提供的医疗知识，给出专业建议
4. **结构化建议**：提供清晰的分步建议

**回答要求**：
- 专业、准确、易懂
- 引用知识来源时标注【知识库】或【联网搜索】
- 给出3-5条结构化建议
- 必要时提醒用户就医

**重要提示**：
- 你不能替代专业医生诊断
- 紧急情况请立即就医
- 建议仅供参考`

func buildAnswerUserPrompt(question string, evidence []domain.EvidenceItem, history []domain.Message) string {
	var knowledge strings.Builder
	for i, item := range evidence {
		label := "【知识库】"
		if item.Origin == domain.OriginExternal {
			label = "【联网搜索】"
		}
		knowledge.WriteString(fmt.Sprintf("\n%s 来源%d：\n%s\n", label, i+1, item.Content))
	}

	var historyBlock string
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, msg := range history {
			role := strings.TrimSpace(msg.Role)
			content := strings.TrimSpace(msg.Content)
			if role == "" || content == "" {
				continue
			}
			speaker := "助手"
			if role == "user" {
				speaker = "用户"
			}
			lines = append(lines, fmt.Sprintf("%s：%s", speaker, content))
		}
		if len(lines) > 0 {
			historyBlock = "历史对话：\n" + strings.Join(lines, "\n") + "\n\n"
		}
	}

	return fmt.Sprintf(`%s用户问题：%s

参考知识：
%s

请基于以上知识给出专业的问诊建议。`, historyBlock, question, knowledge.String())
}
