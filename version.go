package dashauth

// Version is reported in the User-Agent of outbound calls.
const Version = "0.3.0"
