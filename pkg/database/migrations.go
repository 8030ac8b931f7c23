package database

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	log.Info("Running database migrations...")

	err := createHolderConstraints(db)

	if err != nil {
		return err
	}

	err = createNumberGuardTrigger(db)

	if err != nil {
		return err
	}

	err = createHistoryAppendOnlyTrigger(db)

	if err != nil {
		return err
	}

	log.Info("Database migrations completed")

	return nil
}

// createHolderConstraints enforces: holder set iff RESERVED or ALLOCATED,
// reservation expiry set iff RESERVED.
func createHolderConstraints(db *gorm.DB) error {
	constraintSQL := `
ALTER TABLE telephone_numbers DROP CONSTRAINT IF EXISTS telephone_numbers_holder_check;
ALTER TABLE telephone_numbers ADD CONSTRAINT telephone_numbers_holder_check
    CHECK ((status IN ('RESERVED', 'ALLOCATED')) = (holder_id IS NOT NULL));
ALTER TABLE telephone_numbers DROP CONSTRAINT IF EXISTS telephone_numbers_reservation_check;
ALTER TABLE telephone_numbers ADD CONSTRAINT telephone_numbers_reservation_check
    CHECK ((status = 'RESERVED') = (reserved_until IS NOT NULL));
`

	err := db.Exec(constraintSQL).Error

	if err != nil {
		return err
	}

	log.Info("Holder/reservation check constraints created")

	return nil
}

func createNumberGuardTrigger(db *gorm.DB) error {
	functionSQL := `
CREATE OR REPLACE FUNCTION guard_telephone_number_update()
RETURNS TRIGGER AS $$
BEGIN
    IF NEW.number IS DISTINCT FROM OLD.number THEN
        RAISE EXCEPTION 'telephone number % is immutable', OLD.number;
    END IF;
    IF NEW.revision <= OLD.revision THEN
        RAISE EXCEPTION 'revision of % must increase (% -> %)', OLD.number, OLD.revision, NEW.revision;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

	err := db.Exec(functionSQL).Error

	if err != nil {
		return err
	}

	triggerSQL := `
DROP TRIGGER IF EXISTS telephone_numbers_guard_update ON telephone_numbers;
CREATE TRIGGER telephone_numbers_guard_update
    BEFORE UPDATE ON telephone_numbers
    FOR EACH ROW
    EXECUTE FUNCTION guard_telephone_number_update();
`

	err = db.Exec(triggerSQL).Error

	if err != nil {
		return err
	}

	log.Info("Telephone number guard trigger created")

	return nil
}

func createHistoryAppendOnlyTrigger(db *gorm.DB) error {
	functionSQL := `
CREATE OR REPLACE FUNCTION reject_status_history_change()
RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION 'number_status_history is append-only';
END;
$$ LANGUAGE plpgsql;
`

	err := db.Exec(functionSQL).Error

	if err != nil {
		return err
	}

	triggerSQL := `
DROP TRIGGER IF EXISTS number_status_history_append_only ON number_status_history;
CREATE TRIGGER number_status_history_append_only
    BEFORE UPDATE OR DELETE ON number_status_history
    FOR EACH ROW
    EXECUTE FUNCTION reject_status_history_change();
`

	err = db.Exec(triggerSQL).Error

	if err != nil {
		return err
	}

	log.Info("Status history append-only trigger created")

	return nil
}
