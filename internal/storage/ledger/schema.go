package ledger

// Schema for the wallet ledger. Money is integer paise throughout; the
// CHECK on balance_paise makes a negative balance unrepresentable even
// if application-level guards regress.
const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id               TEXT PRIMARY KEY,
	business_unit_id TEXT NOT NULL,
	balance_paise    INTEGER NOT NULL DEFAULT 0 CHECK (balance_paise >= 0),
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wallets_unit ON wallets(business_unit_id);

CREATE TABLE IF NOT EXISTS machines (
	id               TEXT PRIMARY KEY,
	business_unit_id TEXT NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_machines_unit ON machines(business_unit_id);

CREATE TABLE IF NOT EXISTS cards (
	uid             TEXT PRIMARY KEY,
	wallet_id       TEXT NOT NULL REFERENCES wallets(id),
	active          INTEGER NOT NULL DEFAULT 1,
	last_used_at    INTEGER NOT NULL DEFAULT 0,
	last_machine_id TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_wallet ON cards(wallet_id);

CREATE TABLE IF NOT EXISTS dispense_transactions (
	id           TEXT PRIMARY KEY,
	wallet_id    TEXT NOT NULL REFERENCES wallets(id),
	card_uid     TEXT NOT NULL,
	machine_id   TEXT NOT NULL,
	product_type TEXT NOT NULL,
	amount_paise INTEGER NOT NULL CHECK (amount_paise > 0),
	success      INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispense_wallet ON dispense_transactions(wallet_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_dispense_machine ON dispense_transactions(machine_id, created_at DESC);
`
