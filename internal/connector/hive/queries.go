package hive

// Canonical metastore queries. See Dialect.Rebind.
const (
	tableIDQuery = `SELECT t."TBL_ID" FROM "TBLS" t JOIN "DBS" d ON t."DB_ID" = d."DB_ID" WHERE d."NAME" = ? AND t."TBL_NAME" = ?`

	partitionsQuery = `SELECT p."PART_ID", p."PART_NAME", p."CREATE_TIME", COALESCE(s."LOCATION", '') FROM "PARTITIONS" p LEFT JOIN "SDS" s ON p."SD_ID" = s."SD_ID" WHERE p."TBL_ID" = ?`

	partitionCountQuery = `SELECT COUNT(*) FROM "PARTITIONS" p WHERE p."TBL_ID" = ?`

	// partitionParamsQuery is completed with one placeholder per partition and ")".
	partitionParamsQuery = `SELECT pp."PART_ID", pp."PARAM_KEY", pp."PARAM_VALUE" FROM "PARTITION_PARAMS" pp WHERE pp."PART_ID" IN (`

	namesByLocationQuery = `SELECT d."NAME", t."TBL_NAME", p."PART_NAME", s."LOCATION" FROM "PARTITIONS" p JOIN "SDS" s ON p."SD_ID" = s."SD_ID" JOIN "TBLS" t ON p."TBL_ID" = t."TBL_ID" JOIN "DBS" d ON t."DB_ID" = d."DB_ID" WHERE s."LOCATION" = ? ORDER BY d."NAME", t."TBL_NAME", p."PART_NAME"`

	namesByLocationPrefixQuery = `SELECT d."NAME", t."TBL_NAME", p."PART_NAME", s."LOCATION" FROM "PARTITIONS" p JOIN "SDS" s ON p."SD_ID" = s."SD_ID" JOIN "TBLS" t ON p."TBL_ID" = t."TBL_ID" JOIN "DBS" d ON t."DB_ID" = d."DB_ID" WHERE s."LOCATION" LIKE ? ESCAPE '!' ORDER BY d."NAME", t."TBL_NAME", p."PART_NAME"`
)
