package types

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestReminderConfig_Stages(t *testing.T) {
	ladder := ReminderConfig{Mode: StageModeLadder}
	if got := ladder.Stages(); !reflect.DeepEqual(got, []Stage{7, 3, 1, 0}) {
		t.Errorf("ladder Stages() = %v, want [7 3 1 0]", got)
	}

	// Mutating the returned slice must not affect the package ladder.
	got := ladder.Stages()
	got[0] = 99
	if LadderStages[0] != 7 {
		t.Errorf("LadderStages mutated through Stages(): %v", LadderStages)
	}

	single := ReminderConfig{Mode: StageModeSingle, SingleOffsetDays: 5}
	if got := single.Stages(); !reflect.DeepEqual(got, []Stage{5}) {
		t.Errorf("single Stages() = %v, want [5]", got)
	}
}

func TestReminderConfig_TemplateFallback(t *testing.T) {
	cfg := ReminderConfig{
		DefaultTemplate: "default",
		Templates: map[TemplateKey]string{
			{Stage: 7}:                       "stage seven",
			{Stage: 7, Channel: ChannelSMS}:  "stage seven sms",
			{Stage: 3, Channel: ChannelSTB}:  "stage three stb",
			{Stage: 1, Channel: ChannelEmail}: "",
			{Stage: 0}:                        "  \n",
		},
	}

	tests := []struct {
		stage Stage
		ch    ChannelType
		want  string
	}{
		{7, ChannelSMS, "stage seven sms"},
		{7, ChannelEmail, "stage seven"},
		{3, ChannelSTB, "stage three stb"},
		{3, ChannelSMS, "default"},
		{1, ChannelEmail, "default"},
		{0, ChannelSTB, "default"},
	}
	for _, tt := range tests {
		if got := cfg.Template(tt.stage, tt.ch); got != tt.want {
			t.Errorf("Template(%v, %s) = %q, want %q", tt.stage, tt.ch, got, tt.want)
		}
	}
}

func TestStage_String(t *testing.T) {
	if Stage(7).String() != "7d" {
		t.Errorf("Stage(7).String() = %q", Stage(7).String())
	}
	if ExpiredStage.String() != "expired" {
		t.Errorf("ExpiredStage.String() = %q", ExpiredStage.String())
	}
}

func TestDevice_Recipient(t *testing.T) {
	d := Device{
		HardwareID: "00:1A:79:00:00:01",
		Phone:      " +15550100 ",
		ChatHandle: "",
		Email:      "sub@example.com",
	}

	if got := d.Recipient(ChannelSTB); got != "00:1A:79:00:00:01" {
		t.Errorf("stb recipient = %q", got)
	}
	if got := d.Recipient(ChannelSMS); got != "+15550100" {
		t.Errorf("sms recipient = %q, want trimmed phone", got)
	}
	if got := d.Recipient(ChannelChatBot); got != "" {
		t.Errorf("chatbot recipient = %q, want empty", got)
	}
	if got := d.Recipient(ChannelEmail); got != "sub@example.com" {
		t.Errorf("email recipient = %q", got)
	}
}

func TestCounters(t *testing.T) {
	var c Counters
	c.Add(OutcomeSent)
	c.Add(OutcomeSent)
	c.Add(OutcomeSkipped)
	c.Add(OutcomeFailed)
	c.Add(Outcome("bogus"))

	if c.Sent != 2 || c.Skipped != 1 || c.Failed != 1 {
		t.Errorf("counters = %+v", c)
	}
	if c.Total() != 4 {
		t.Errorf("Total() = %d, want 4", c.Total())
	}
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	late := time.Date(2025, 6, 1, 23, 30, 0, 0, loc)

	got := DateOf(late)
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateOf() = %v, want %v", got, want)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2025-06-01 ")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !got.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDate() = %v", got)
	}

	_, err = ParseDate("06/01/2025")
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != ErrCodeValidationInvalidDate {
		t.Errorf("expected validation_invalid_date, got %v", err)
	}
}

func TestParseChannels(t *testing.T) {
	got := ParseChannels(" SMS, stb,,email ")
	want := []ChannelType{ChannelSMS, ChannelSTB, ChannelEmail}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseChannels() = %v, want %v", got, want)
	}
	if ParseChannels("") != nil {
		t.Error("ParseChannels(\"\") should be nil")
	}
	if s := JoinChannels(want); s != "sms,stb,email" {
		t.Errorf("JoinChannels() = %q", s)
	}
}
