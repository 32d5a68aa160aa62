package agent

// RPC method names.
const (
	MethodGetAllPortStats    = "getAllPortStats"
	MethodGetRouteTable      = "getRouteTable"
	MethodSyncFib            = "syncFib"
	MethodAddUnicastRoute    = "addUnicastRoute"
	MethodDeleteUnicastRoute = "deleteUnicastRoute"
)

// Fixed sequence ids older agent clients sent per method. The session layer
// assigns increasing ids instead; these remain for matching captured traffic.
const (
	LegacySeqGetAllPortStats    int32 = 99
	LegacySeqGetRouteTable      int32 = 100
	LegacySeqSyncFib            int32 = 101
	LegacySeqAddUnicastRoute    int32 = 102
	LegacySeqDeleteUnicastRoute int32 = 103
)

// DefaultClientID identifies route writers to the agent.
const DefaultClientID int16 = 1

// Result struct fields.
const (
	fieldSuccess int16 = 0
	fieldError   int16 = 1
)

// Argument struct fields shared by the route-writing calls.
const (
	argClientID int16 = 1
	argPayload  int16 = 2
)

// UnicastRoute fields.
const (
	routeDest     int16 = 1
	routeNextHops int16 = 2
)

// IpPrefix fields.
const (
	prefixIP     int16 = 1
	prefixLength int16 = 2
)

// BinaryAddress fields.
const (
	addrBytes  int16 = 1
	addrPort   int16 = 2
	addrIfName int16 = 3
)

// PortInfo fields.
const (
	portOperState int16 = 4

	operStateUp int32 = 1
)

// FbossBaseError fields.
const errMessage int16 = 1
