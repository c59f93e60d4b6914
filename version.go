package netq

// Version is the netq release. It is sent in the default User-Agent header.
const Version = "0.4.0"
