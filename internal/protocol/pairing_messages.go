package protocol

import "encoding/json"

// Hello is the first message of a fresh, not yet paired connection.
type HelloPayload struct {
	DeviceName   string            `json:"device_name"`
	Model        string            `json:"model,omitempty"`
	AppVersion   string            `json:"app_version,omitempty"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

type Hello struct {
	head
	Payload HelloPayload `json:"payload"`
}

func NewHello(peerID string, payload HelloPayload) *Hello {
	h := newHead(HelloKind)
	h.PeerID = peerID
	return &Hello{head: h, Payload: payload}
}

func (m Hello) ToJSON() ([]byte, error) { return json.Marshal(m) }

type PairRequestPayload struct {
	Token        string            `json:"token"`
	DeviceName   string            `json:"device_name,omitempty"`
	Model        string            `json:"model,omitempty"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

type PairRequest struct {
	head
	Payload PairRequestPayload `json:"payload"`
}

func NewPairRequest(peerID string, payload PairRequestPayload) *PairRequest {
	h := newHead(PairRequestKind)
	h.PeerID = peerID
	return &PairRequest{head: h, Payload: payload}
}

func (m PairRequest) ToJSON() ([]byte, error) { return json.Marshal(m) }

// PairAccept carries the minted device credential and assigned display
// name back to a newly paired peer.
type PairAcceptPayload struct {
	DeviceKey string `json:"device_key"`
	Name      string `json:"name"`
}

type PairAccept struct {
	head
	Payload PairAcceptPayload `json:"payload"`
}

func NewPairAccept(peerID, deviceKey, name string) *PairAccept {
	h := newHead(PairAcceptKind)
	h.PeerID = peerID
	return &PairAccept{head: h, Payload: PairAcceptPayload{DeviceKey: deviceKey, Name: name}}
}

func (m PairAccept) ToJSON() ([]byte, error) { return json.Marshal(m) }

type PairRejectPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type PairReject struct {
	head
	Payload PairRejectPayload `json:"payload"`
}

func NewPairReject(peerID, reason, detail string) *PairReject {
	h := newHead(PairRejectKind)
	h.PeerID = peerID
	return &PairReject{head: h, Payload: PairRejectPayload{Reason: reason, Detail: detail}}
}

func (m PairReject) ToJSON() ([]byte, error) { return json.Marshal(m) }

// Auth is silent re-authentication with a previously issued device key.
type AuthPayload struct {
	DeviceKey  string `json:"device_key"`
	DeviceName string `json:"device_name,omitempty"`
}

type Auth struct {
	head
	Payload AuthPayload `json:"payload"`
}

func NewAuth(peerID, deviceKey string) *Auth {
	h := newHead(AuthKind)
	h.PeerID = peerID
	return &Auth{head: h, Payload: AuthPayload{DeviceKey: deviceKey}}
}

func (m Auth) ToJSON() ([]byte, error) { return json.Marshal(m) }

type AuthOkPayload struct {
	Name string  `json:"name"`
	Slot *string `json:"slot,omitempty"`
}

type AuthOk struct {
	head
	Payload AuthOkPayload `json:"payload"`
}

func NewAuthOk(peerID, name string, slot *string) *AuthOk {
	h := newHead(AuthOkKind)
	h.PeerID = peerID
	return &AuthOk{head: h, Payload: AuthOkPayload{Name: name, Slot: slot}}
}

func (m AuthOk) ToJSON() ([]byte, error) { return json.Marshal(m) }

type AuthFailedPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type AuthFailed struct {
	head
	Payload AuthFailedPayload `json:"payload"`
}

func NewAuthFailed(peerID, reason, detail string) *AuthFailed {
	h := newHead(AuthFailedKind)
	h.PeerID = peerID
	return &AuthFailed{head: h, Payload: AuthFailedPayload{Reason: reason, Detail: detail}}
}

func (m AuthFailed) ToJSON() ([]byte, error) { return json.Marshal(m) }
