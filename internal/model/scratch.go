package model

import "time"

// ScheduleItem is one block of a persona's daily schedule.
type ScheduleItem struct {
	Activity string `json:"activity" yaml:"activity"`
	Minutes  int    `json:"minutes" yaml:"minutes"`
}

// Scratch is a persona's short-term working state. Retrieval reads the
// trait weights from it; ablation clears the planning and conversation fields.
type Scratch struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Innate    string `json:"innate,omitempty"`
	Learned   string `json:"learned,omitempty"`
	Currently string `json:"currently,omitempty"`
	Lifestyle string `json:"lifestyle,omitempty"`

	LivingArea string    `json:"living_area,omitempty"`
	CurrTime   time.Time `json:"curr_time,omitempty"`

	RecencyW     float64 `json:"recency_w"`
	RelevanceW   float64 `json:"relevance_w"`
	ImportanceW  float64 `json:"importance_w"`
	RecencyDecay float64 `json:"recency_decay"`

	ImportanceTriggerMax  int `json:"importance_trigger_max,omitempty"`
	ImportanceTriggerCurr int `json:"importance_trigger_curr,omitempty"`
	ImportanceEleN        int `json:"importance_ele_n,omitempty"`

	DailyReq                []string       `json:"daily_req,omitempty"`
	DailyPlanReq            string         `json:"daily_plan_req,omitempty"`
	FDailySchedule          []ScheduleItem `json:"f_daily_schedule,omitempty"`
	FDailyScheduleHourlyOrg []ScheduleItem `json:"f_daily_schedule_hourly_org,omitempty"`

	ChattingWith       string         `json:"chatting_with,omitempty"`
	Chat               []Utterance    `json:"chat,omitempty"`
	ChattingWithBuffer map[string]int `json:"chatting_with_buffer,omitempty"`
}

// DefaultRecencyDecay is the per-position recency decay used when a
// persona does not set one.
const DefaultRecencyDecay = 0.99

// NewScratch returns a scratch for name with unit trait weights.
func NewScratch(name string) *Scratch {
	return &Scratch{
		Name:         name,
		RecencyW:     1,
		RelevanceW:   1,
		ImportanceW:  1,
		RecencyDecay: DefaultRecencyDecay,
	}
}

// Decay returns the recency decay, falling back to DefaultRecencyDecay.
func (s *Scratch) Decay() float64 {
	if s.RecencyDecay <= 0 {
		return DefaultRecencyDecay
	}
	return s.RecencyDecay
}

// ClearPlanning empties the fields derived from planning thoughts.
func (s *Scratch) ClearPlanning() {
	s.DailyReq = []string{}
	s.DailyPlanReq = ""
	s.FDailySchedule = []ScheduleItem{}
	s.FDailyScheduleHourlyOrg = []ScheduleItem{}
}

// ClearConversation ends any ongoing chat.
func (s *Scratch) ClearConversation() {
	s.ChattingWith = ""
	s.Chat = nil
	s.ChattingWithBuffer = map[string]int{}
}

// Clone returns a deep copy of s.
func (s *Scratch) Clone() *Scratch {
	c := *s
	if s.DailyReq != nil {
		c.DailyReq = append([]string(nil), s.DailyReq...)
	}
	if s.FDailySchedule != nil {
		c.FDailySchedule = append([]ScheduleItem(nil), s.FDailySchedule...)
	}
	if s.FDailyScheduleHourlyOrg != nil {
		c.FDailyScheduleHourlyOrg = append([]ScheduleItem(nil), s.FDailyScheduleHourlyOrg...)
	}
	if s.Chat != nil {
		c.Chat = append([]Utterance(nil), s.Chat...)
	}
	if s.ChattingWithBuffer != nil {
		c.ChattingWithBuffer = make(map[string]int, len(s.ChattingWithBuffer))
		for k, v := range s.ChattingWithBuffer {
			c.ChattingWithBuffer[k] = v
		}
	}
	return &c
}
