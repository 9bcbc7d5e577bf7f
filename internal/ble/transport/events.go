package transport

// GapEvent is an advertising/scanning lifecycle event.
type GapEvent interface {
	gapEvent()
}

// GattEvent is a connection, discovery or data transfer event.
type GattEvent interface {
	gattEvent()
}

type (
	ScanParamsSetEvent struct {
		Status Status
	}
	ScanStartEvent struct {
		Status Status
	}
	// ScanResultEvent is one received advertisement.
	ScanResultEvent struct {
		Address     Address
		AddressType AddressType
		Name        string
		RSSI        int16
	}
	// ScanCompleteEvent marks the end of the scan window.
	ScanCompleteEvent struct{}

	ScanStopEvent struct {
		Status Status
	}
	AdvDataSetEvent struct {
		Status Status
	}
	ScanRspDataSetEvent struct {
		Status Status
	}
	AdvStartEvent struct {
		Status Status
	}
	ConnParamsUpdateEvent struct {
		Status      Status
		Address     Address
		MinInterval uint16
		MaxInterval uint16
		Latency     uint16
		Timeout     uint16
	}
)

func (ScanParamsSetEvent) gapEvent()    {}
func (ScanStartEvent) gapEvent()        {}
func (ScanResultEvent) gapEvent()       {}
func (ScanCompleteEvent) gapEvent()     {}
func (ScanStopEvent) gapEvent()         {}
func (AdvDataSetEvent) gapEvent()       {}
func (ScanRspDataSetEvent) gapEvent()   {}
func (AdvStartEvent) gapEvent()         {}
func (ConnParamsUpdateEvent) gapEvent() {}

type (
	// RegisterEvent completes RegisterApplicationProfile.
	RegisterEvent struct {
		Status Status
		AppID  AppID
	}
	OpenEvent struct {
		Status  Status
		ConnID  ConnID
		Address Address
		MTU     uint16
	}
	ConnectEvent struct {
		ConnID  ConnID
		Address Address
	}
	DisconnectEvent struct {
		ConnID  ConnID
		Address Address
		Reason  DisconnectReason
	}
	CloseEvent struct {
		Status Status
		ConnID ConnID
	}
	MtuEvent struct {
		Status Status
		ConnID ConnID
		MTU    uint16
	}
	// DiscoveryCompleteEvent is raised by the stack after it has discovered
	// the remote database following a connect.
	DiscoveryCompleteEvent struct {
		Status Status
		ConnID ConnID
	}
	SearchResultEvent struct {
		ConnID      ConnID
		UUID        UUID16
		StartHandle Handle
		EndHandle   Handle
		Primary     bool
	}
	SearchCompleteEvent struct {
		Status Status
		ConnID ConnID
		Source ServiceSource
	}
	WriteCharEvent struct {
		Status Status
		ConnID ConnID
		Handle Handle
	}
	CreateServiceEvent struct {
		Status        Status
		ServiceHandle Handle
		ServiceID     ServiceID
	}
	StartServiceEvent struct {
		Status        Status
		ServiceHandle Handle
	}
	AddCharEvent struct {
		Status        Status
		ServiceHandle Handle
		AttrHandle    Handle
		UUID          UUID16
	}
	AddDescrEvent struct {
		Status        Status
		ServiceHandle Handle
		AttrHandle    Handle
		UUID          UUID16
	}
	// WriteEvent is a peer write against the local database.
	WriteEvent struct {
		ConnID       ConnID
		TransID      uint32
		Address      Address
		Handle       Handle
		Offset       uint16
		Value        []byte
		NeedResponse bool
		Prepare      bool
	}
	ResponseEvent struct {
		Status Status
		Handle Handle
	}
)

func (RegisterEvent) gattEvent()          {}
func (OpenEvent) gattEvent()              {}
func (ConnectEvent) gattEvent()           {}
func (DisconnectEvent) gattEvent()        {}
func (CloseEvent) gattEvent()             {}
func (MtuEvent) gattEvent()               {}
func (DiscoveryCompleteEvent) gattEvent() {}
func (SearchResultEvent) gattEvent()      {}
func (SearchCompleteEvent) gattEvent()    {}
func (WriteCharEvent) gattEvent()         {}
func (CreateServiceEvent) gattEvent()     {}
func (StartServiceEvent) gattEvent()      {}
func (AddCharEvent) gattEvent()           {}
func (AddDescrEvent) gattEvent()          {}
func (WriteEvent) gattEvent()             {}
func (ResponseEvent) gattEvent()          {}
