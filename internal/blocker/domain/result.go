package domain

// EnforceResult reports what an enforcement pass did to the hosts table.
type EnforceResult struct {
	// Updated is true when the table content actually changed on disk.
	Updated bool
	// Hostnames is the number of redirect lines now in the managed region.
	Hostnames int
}
