// Package ics は招待用iCalendar（.ics）ファイルの生成を提供する。
package ics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
)

// prodID は生成する.icsファイルのPRODID。
const prodID = "-//Bookman//Booking//EN"

// Invite は招待.icsの生成に必要な情報を表す。
type Invite struct {
	EventID        string // UIDとして使用（Google側イベントIDと揃える）
	Summary        string
	Description    string
	Location       string
	URL            string // イベントへのリンク（任意）
	Start          time.Time
	End            time.Time
	OrganizerName  string
	OrganizerEmail string
	AttendeeName   string
	AttendeeEmail  string
}

// BuildInvite はRSVP要求付きの招待.icsコンテンツを生成する。
// METHOD:REQUESTにより、受信側カレンダークライアントが
// 承諾/辞退ボタンを表示する。
func BuildInvite(inv *Invite) (string, error) {
	if inv.EventID == "" {
		return "", fmt.Errorf("event ID is required")
	}
	if inv.AttendeeEmail == "" {
		return "", fmt.Errorf("attendee email is required")
	}
	if !inv.End.After(inv.Start) {
		return "", fmt.Errorf("event end must be after start")
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropMethod, "REQUEST")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, inv.EventID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, inv.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, inv.End.UTC())
	event.Props.SetText(ical.PropSummary, inv.Summary)
	if inv.Description != "" {
		event.Props.SetText(ical.PropDescription, inv.Description)
	}
	if inv.Location != "" {
		event.Props.SetText(ical.PropLocation, inv.Location)
	}
	if inv.URL != "" {
		event.Props.SetText(ical.PropURL, inv.URL)
	}
	event.Props.SetText(ical.PropStatus, "CONFIRMED")

	organizer := ical.NewProp(ical.PropOrganizer)
	if inv.OrganizerName != "" {
		organizer.Params.Set(ical.ParamCommonName, inv.OrganizerName)
	}
	organizer.Value = "mailto:" + inv.OrganizerEmail
	event.Props.Add(organizer)

	attendee := ical.NewProp(ical.PropAttendee)
	if inv.AttendeeName != "" {
		attendee.Params.Set(ical.ParamCommonName, inv.AttendeeName)
	}
	attendee.Params.Set(ical.ParamCalendarUserType, "INDIVIDUAL")
	attendee.Params.Set(ical.ParamParticipationStatus, "NEEDS-ACTION")
	attendee.Params.Set(ical.ParamRSVP, "TRUE")
	attendee.Value = "mailto:" + inv.AttendeeEmail
	event.Props.Add(attendee)

	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}

	return buf.String(), nil
}
