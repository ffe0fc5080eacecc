package collector

// Pattern constants.
const DefaultIncludePattern = "*"

// Security features counted in the security features coverage average.
const NumSecurityFeatures = 6

// Percentage constants.
const MaxPercentage = 100

// Default branches audited for protection.
var DefaultBranches = []string{"main", "test", "develop"}
