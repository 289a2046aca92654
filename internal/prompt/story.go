package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/storybook/internal/types"
)

const storyPromptTemplateText = `당신은 세계적인 동화 작가입니다.
아래의 장면 조각들을 모아 '{{.ChildName}}'와 '{{.PartnerName}}'가 주인공인 하나의 완벽하고 아름다운 동화를 완성하세요.
이 동화는 {{.Age}}세 아이에게 읽어줄 {{.Genre}} 이야기이고, '{{.Purpose}}'을(를) 자연스럽게 배울 수 있어야 해요.

[조건]
1. 제목: 첫 줄에 창의적인 제목만 적어주세요.
2. 문체: 아이에게 읽어주는 듯한 다정하고 부드러운 '해요체'를 사용하세요.
3. 구성: 장면의 순서를 그대로 지키고, 기승전결이 자연스럽게 이어지도록 장면 사이의 연결 문장을 풍부하게 추가하세요.
4. 분량: 각 장면의 묘사를 살려 충분히 길고 풍성하게 작성하세요.

[장면 내용]
{{- range .Scenes}}
- {{.CharacterName}}: "{{.Dialogue}}" ({{.StoryNarration}})
{{- end}}`

var storyPromptTemplate = template.Must(template.New("story").Parse(storyPromptTemplateText))

// BuildStoryInstruction renders the assembly prompt over cards in page order.
func BuildStoryInstruction(cards []types.StoryCard, cfg types.StoryConfig) (string, error) {
	if len(cards) == 0 {
		return "", fmt.Errorf("no cards to assemble")
	}

	data := struct {
		promptData
		Scenes []types.StoryCard
	}{
		promptData: newPromptData(cfg),
		Scenes:     cards,
	}

	var buf bytes.Buffer
	if err := storyPromptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build story prompt: %w", err)
	}
	return buf.String(), nil
}
