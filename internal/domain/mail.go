package domain

const MailTypeRosterUpdated = "roster_updated"

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type RosterUpdatedMailItem struct {
	Date      Date   `json:"date"`
	ShiftName string `json:"shiftName"`
	ShiftCode string `json:"shiftCode"`
}

type RosterUpdatedMailData struct {
	FullName string                  `json:"fullName"`
	Items    []RosterUpdatedMailItem `json:"items"`
}
