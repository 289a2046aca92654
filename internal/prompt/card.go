package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/storybook/internal/imageutil"
	"github.com/easeaico/storybook/internal/types"
)

const cardPromptTemplateText = `당신은 {{.Age}}세 아이를 위한 베스트셀러 동화 작가입니다.
사진 속 사물이나 풍경을 의인화하여 생동감 넘치는 캐릭터를 만들고,
마치 실제 동화책의 한 페이지를 읽는 듯한 아름답고 구체적인 문장으로 이야기를 서술하세요.

[설정]
- 장르: {{.Genre}}
- 교육 목적: {{.Purpose}}
- 주인공 이름: {{.ChildName}}
- 짝꿍(친구) 이름: {{.PartnerName}}

[필수 요구사항]
1. story_narration (상황 설명): 단순한 요약이 아니라, 눈앞에 그려지듯 생생하고 감성적인 서술형 문장으로 작성하세요. (최소 2~3문장 이상)
   - 나쁜 예: "친구가 꽃가루를 뿌려 위험을 알린다."
   - 좋은 예: "그때였어요! 꼬마 요정 핑키가 반짝이는 날개를 파닥이며 나타났어요. '얘들아, 조심해!' 핑키는 주머니에서 황금빛 꽃가루를 후우~ 불어 친구들에게 위험을 알렸답니다."
2. dialogue (대사): 캐릭터의 성격이 드러나는 말투(해요체)를 사용하세요.
3. character_name: 장르에 어울리는 기발한 이름을 지어주세요.

[출력 형식]
아래 여섯 개의 문자열 필드만 가진 JSON 객체 하나로 답하세요. 배열로 감싸지 마세요.
{
    "character_name": "캐릭터 이름",
    "character_type": "원래 사물/동물",
    "magic_power": "마법 능력",
    "personality": "성격",
    "dialogue": "캐릭터의 대사",
    "story_narration": "동화책 서술형 상황 묘사 (길고 구체적으로)"
}`

var cardPromptTemplate = template.Must(template.New("card").Parse(cardPromptTemplateText))

// CardRequest is the instruction and reduced image sent for one photo.
type CardRequest struct {
	Instruction string
	Image       imageutil.Shrunk
}

type promptData struct {
	Age         int
	Genre       string
	Purpose     string
	ChildName   string
	PartnerName string
}

func newPromptData(cfg types.StoryConfig) promptData {
	return promptData{
		Age:         cfg.ClampedAge(),
		Genre:       cfg.Genre,
		Purpose:     cfg.Purpose,
		ChildName:   cfg.DisplayChildName(),
		PartnerName: cfg.DisplayPartnerName(),
	}
}

// BuildCardInstruction renders the card instruction for cfg.
func BuildCardInstruction(cfg types.StoryConfig) (string, error) {
	var buf bytes.Buffer
	if err := cardPromptTemplate.Execute(&buf, newPromptData(cfg)); err != nil {
		return "", fmt.Errorf("failed to build card prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildCardRequest renders the instruction and shrinks the image to imageutil.MaxSide.
func BuildCardRequest(cfg types.StoryConfig, image []byte) (CardRequest, error) {
	shrunk, err := imageutil.Shrink(image, imageutil.MaxSide)
	if err != nil {
		return CardRequest{}, err
	}
	instruction, err := BuildCardInstruction(cfg)
	if err != nil {
		return CardRequest{}, err
	}
	return CardRequest{Instruction: instruction, Image: shrunk}, nil
}
