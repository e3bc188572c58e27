// Package mfa generates and normalises single-use recovery (backup) codes.
package mfa
