package olatx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomnomnom/linkheader"
)

// REST-AT 中使用的 link relation
const (
	RelParticipant         = "participant"
	RelTerminator          = "terminator"
	RelVolatileParticipant = "volatile-participant"
	RelDurableParticipant  = "durable-participant"
)

// LinkDescriptor 描述一个参与者的回调地址，构造后不可变
type LinkDescriptor struct {
	BaseURL       string
	Durable       bool
	ParticipantID string
	extra         []linkParam
}

type linkParam struct {
	key, value string
}

// BuildLinkHeader 构造参与者的 link header. 纯函数，participantID 的唯一性由调用方保证
func BuildLinkHeader(baseURL string, durable bool, participantID string, extra map[string]string) LinkDescriptor {
	params := make([]linkParam, 0, len(extra))
	for k, v := range extra {
		params = append(params, linkParam{key: k, value: v})
	}
	sort.Slice(params, func(i, j int) bool {
		return params[i].key < params[j].key
	})

	return LinkDescriptor{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		Durable:       durable,
		ParticipantID: participantID,
		extra:         params,
	}
}

// TerminatorURL 协调者 PUT 的地址
func (l LinkDescriptor) TerminatorURL() string {
	return fmt.Sprintf("%s/%s/terminator", l.BaseURL, l.ParticipantID)
}

// ParticipantURL 协调者 HEAD 的地址
func (l LinkDescriptor) ParticipantURL() string {
	return fmt.Sprintf("%s/%s/participant", l.BaseURL, l.ParticipantID)
}

func (l LinkDescriptor) volatileURL() string {
	return fmt.Sprintf("%s/%s/volatile-participant", l.BaseURL, l.ParticipantID)
}

// String 输出 Link 头的值，顺序固定，相同输入得到相同输出
func (l LinkDescriptor) String() string {
	var sb strings.Builder
	l.writeLink(&sb, l.ParticipantURL(), RelParticipant, true)
	sb.WriteString(", ")
	l.writeLink(&sb, l.TerminatorURL(), RelTerminator, true)
	if !l.Durable {
		sb.WriteString(", ")
		l.writeLink(&sb, l.volatileURL(), RelVolatileParticipant, false)
	}
	return sb.String()
}

func (l LinkDescriptor) writeLink(sb *strings.Builder, url, rel string, withTitle bool) {
	fmt.Fprintf(sb, "<%s>; rel=%q", url, rel)
	if withTitle {
		fmt.Fprintf(sb, "; title=%q", rel)
	}
	for _, p := range l.extra {
		fmt.Fprintf(sb, "; %s=%q", p.key, p.value)
	}
}

// ParseLinkHeader 解析 Link 头，返回 rel -> url
func ParseLinkHeader(headers ...string) map[string]string {
	links := make(map[string]string)
	for _, link := range linkheader.ParseMultiple(headers) {
		for _, rel := range strings.Fields(link.Rel) {
			if _, ok := links[rel]; !ok {
				links[rel] = link.URL
			}
		}
	}
	return links
}
