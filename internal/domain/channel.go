package domain

// ChannelInfo mirrors the counterparty's view of one funding channel.
type ChannelInfo struct {
	ChannelID   string `json:"channel_id"`
	Participant string `json:"participant"`
	Status      string `json:"status"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	ChainID     int64  `json:"chain_id"`
}

// LedgerBalance is one asset balance held by the counterparty ledger.
type LedgerBalance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// AppSession is a counterparty-hosted session.
type AppSession struct {
	AppSessionID string `json:"app_session_id"`
	Status       string `json:"status"`
	Version      int64  `json:"version"`
}
