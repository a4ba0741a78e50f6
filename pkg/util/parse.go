package util

import "strconv"

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    if v, err := strconv.Atoi(s); err == nil {
        return v
    }
    return def
}

// ParseFloatDefault parses string to float64 or returns default if empty/invalid.
func ParseFloatDefault(s string, def float64) float64 {
    if s == "" {
        return def
    }
    if v, err := strconv.ParseFloat(s, 64); err == nil {
        return v
    }
    return def
}
