// Package updater is the session facade the CLI drives. It loads the version
// manifest, works out which releases the installation is missing and applies
// them one after another through the patcher. The outcome of the last check
// is kept in last-check.json under the karazeh home directory and powers the
// startup banner.
package updater
